// Package export writes run artifacts: a flat per-sample CSV and an xlsx
// workbook with per-service sheets.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/clinbench/recoeval/internal/models"
)

var flatHeader = []string{
	"service_id",
	"combination_label",
	"combination_key",
	"clinical_scenario",
	"standard_answer",
	"recommendations",
	"hit",
	"top1_hit",
	"top3_hit",
	"judge_fallback",
	"processing_time_ms",
}

// FlatRow is one per-sample line of the flat CSV.
type FlatRow struct {
	ServiceID        string
	CombinationLabel string
	CombinationKey   string
	ClinicalScenario string
	StandardAnswer   string
	Recommendations  [][]string
	Hit              bool
	Top1Hit          bool
	Top3Hit          bool
	JudgeFallback    bool
	ProcessingTimeMs int64
}

// encodeRecommendations joins groups with "|" and items with ";". The flat
// CSV is a reporting artifact; items containing either separator are rare in
// examination names and round-trip lossily.
func encodeRecommendations(recs [][]string) string {
	groups := make([]string, 0, len(recs))
	for _, g := range recs {
		groups = append(groups, strings.Join(g, ";"))
	}
	return strings.Join(groups, "|")
}

func decodeRecommendations(s string) [][]string {
	if s == "" {
		return nil
	}
	var out [][]string
	for _, g := range strings.Split(s, "|") {
		if g == "" {
			out = append(out, []string{})
			continue
		}
		out = append(out, strings.Split(g, ";"))
	}
	return out
}

// Flatten converts an aggregate result into flat rows, ordered by service id
// and combination label for deterministic output.
func Flatten(result *models.AggregateResult) []FlatRow {
	serviceIDs := make([]string, 0, len(result.PerService))
	for id := range result.PerService {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	var rows []FlatRow
	for _, id := range serviceIDs {
		sr := result.PerService[id]
		labels := make([]string, 0, len(sr.CombinationResults))
		for label := range sr.CombinationResults {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			cr := sr.CombinationResults[label]
			for _, d := range cr.Details {
				rows = append(rows, FlatRow{
					ServiceID:        id,
					CombinationLabel: label,
					CombinationKey:   cr.Combination.Key(),
					ClinicalScenario: d.ClinicalScenario,
					StandardAnswer:   d.StandardAnswer,
					Recommendations:  d.Recommendations,
					Hit:              d.Hit,
					Top1Hit:          d.Top1Hit,
					Top3Hit:          d.Top3Hit,
					JudgeFallback:    d.JudgeFallback,
					ProcessingTimeMs: d.ProcessingTimeMs,
				})
			}
		}
	}
	return rows
}

// WriteFlatCSV writes the per-sample flat CSV artifact.
func WriteFlatCSV(path string, result *models.AggregateResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(flatHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, row := range Flatten(result) {
		record := []string{
			row.ServiceID,
			row.CombinationLabel,
			row.CombinationKey,
			row.ClinicalScenario,
			row.StandardAnswer,
			encodeRecommendations(row.Recommendations),
			strconv.FormatBool(row.Hit),
			strconv.FormatBool(row.Top1Hit),
			strconv.FormatBool(row.Top3Hit),
			strconv.FormatBool(row.JudgeFallback),
			strconv.FormatInt(row.ProcessingTimeMs, 10),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// ReadFlatCSV reads a flat CSV artifact back into rows.
func ReadFlatCSV(path string) ([]FlatRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("export: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("export: %s is empty", path)
	}
	if strings.Join(records[0], ",") != strings.Join(flatHeader, ",") {
		return nil, fmt.Errorf("export: %s has unexpected header", path)
	}

	rows := make([]FlatRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(flatHeader) {
			return nil, fmt.Errorf("export: row %d has %d columns, expected %d", i+2, len(rec), len(flatHeader))
		}
		ms, err := strconv.ParseInt(rec[10], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+2, err)
		}
		rows = append(rows, FlatRow{
			ServiceID:        rec[0],
			CombinationLabel: rec[1],
			CombinationKey:   rec[2],
			ClinicalScenario: rec[3],
			StandardAnswer:   rec[4],
			Recommendations:  decodeRecommendations(rec[5]),
			Hit:              rec[6] == "true",
			Top1Hit:          rec[7] == "true",
			Top3Hit:          rec[8] == "true",
			JudgeFallback:    rec[9] == "true",
			ProcessingTimeMs: ms,
		})
	}
	return rows, nil
}

// ComboStats is the re-aggregation of one (service, combination) slice of a
// flat CSV, used to verify that exports carry the full evaluation signal.
type ComboStats struct {
	TotalSamples int
	HitSamples   int
	Accuracy     float64
}

// Reaggregate recomputes per (service, combination label) stats from flat
// rows.
func Reaggregate(rows []FlatRow) map[string]map[string]ComboStats {
	out := map[string]map[string]ComboStats{}
	for _, row := range rows {
		perService, ok := out[row.ServiceID]
		if !ok {
			perService = map[string]ComboStats{}
			out[row.ServiceID] = perService
		}
		s := perService[row.CombinationLabel]
		s.TotalSamples++
		if row.Hit {
			s.HitSamples++
		}
		s.Accuracy = float64(s.HitSamples) / float64(s.TotalSamples)
		perService[row.CombinationLabel] = s
	}
	return out
}
