// Package dataset ingests labeled clinical samples from Excel and CSV files.
package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/clinbench/recoeval/internal/models"
)

// matchColumns finds the scenario and gold-answer columns. The canonical
// dataset uses Chinese headers; English fallbacks cover exported variants.
func matchColumns(headers []string) (scenarioCol, answerCol string, err error) {
	for _, h := range headers {
		trimmed := trim(h)
		switch {
		case strings.Contains(trimmed, "临床场景"):
			scenarioCol = h
		case strings.Contains(trimmed, "首选检查项目") && strings.Contains(trimmed, "标准化"):
			answerCol = h
		}
	}
	if scenarioCol == "" {
		for _, h := range headers {
			switch strings.ToLower(trim(h)) {
			case "scenario", "scenarios", "clinical_scenario":
				scenarioCol = h
			}
		}
	}
	if answerCol == "" {
		for _, h := range headers {
			switch strings.ToLower(trim(h)) {
			case "gold_answer", "standard_answer", "answer":
				answerCol = h
			}
		}
	}
	if scenarioCol == "" || answerCol == "" {
		return "", "", fmt.Errorf("could not locate scenario and answer columns in headers %v", headers)
	}
	return scenarioCol, answerCol, nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

// LoadSamplesExcel loads labeled samples from the first sheet of an xlsx
// workbook. Rows with a blank scenario are skipped. limit <= 0 loads
// everything.
func LoadSamplesExcel(path string, limit int) ([]models.Sample, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("excel: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel: %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("excel: read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("excel: %s has no data rows", path)
	}

	headers := rows[0]
	scenarioCol, answerCol, err := matchColumns(headers)
	if err != nil {
		return nil, fmt.Errorf("excel: %s: %w", path, err)
	}
	scenarioIdx, answerIdx := -1, -1
	for i, h := range headers {
		if h == scenarioCol {
			scenarioIdx = i
		}
		if h == answerCol {
			answerIdx = i
		}
	}

	samples := make([]models.Sample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		s := models.Sample{
			ClinicalScenario: cellAt(row, scenarioIdx),
			StandardAnswer:   cellAt(row, answerIdx),
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
		return nil, fmt.Errorf("excel: %s yielded no usable samples", path)
	}
	return samples, nil
}

// cellAt tolerates excelize's ragged rows, where trailing empty cells are
// omitted.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return trim(row[idx])
}

// LoadSamples dispatches on the file extension: .xlsx loads through excelize,
// anything else is treated as CSV.
func LoadSamples(path string, limit int) ([]models.Sample, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadSamplesExcel(path, limit)
	}
	return LoadSamplesCSV(path, limit)
}
