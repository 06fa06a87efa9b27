package dataset

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/clinbench/recoeval/internal/models"
)

// Row represents a single CSV row with column name to value mapping.
type Row map[string]string

// LoadCSV reads a CSV file and returns rows as maps of column to value.
// The first row is treated as headers (column names).
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := records[0]
	rows := make([]Row, 0, len(records)-1)

	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadSamplesCSV loads labeled samples from a CSV file. Column matching
// follows the same loose rules as the Excel loader; rows with a blank
// scenario are skipped. limit <= 0 loads everything.
func LoadSamplesCSV(path string, limit int) ([]models.Sample, error) {
	rows, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv: %s has no data rows", path)
	}

	headers := make([]string, 0, len(rows[0]))
	for h := range rows[0] {
		headers = append(headers, h)
	}
	scenarioCol, answerCol, err := matchColumns(headers)
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", path, err)
	}

	samples := make([]models.Sample, 0, len(rows))
	for _, row := range rows {
		s := models.Sample{
			ClinicalScenario: trim(row[scenarioCol]),
			StandardAnswer:   trim(row[answerCol]),
		}
		if s.ClinicalScenario == "" {
			continue
		}
		samples = append(samples, s)
		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("csv: %s yielded no usable samples", path)
	}
	return samples, nil
}
