package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/clinbench/recoeval/internal/models"
)

// WriteWorkbook writes the xlsx result artifact: one sheet per service with
// per-sample rows and a trailing stats row, plus a Summary sheet with one row
// per service.
func WriteWorkbook(path string, result *models.AggregateResult) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	serviceIDs := make([]string, 0, len(result.PerService))
	for id := range result.PerService {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	if err := writeSummarySheet(f, result, serviceIDs); err != nil {
		return err
	}
	for _, id := range serviceIDs {
		sr := result.PerService[id]
		if err := writeServiceSheet(f, id, sr); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save workbook %s: %w", path, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, result *models.AggregateResult, serviceIDs []string) error {
	const sheet = "Summary"
	// The default sheet becomes the summary.
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("export: rename summary sheet: %w", err)
	}

	rows := [][]any{
		{"service_id", "overall_accuracy", "total_samples", "failed_samples", "avg_processing_time_ms", "error"},
	}
	for _, id := range serviceIDs {
		sr := result.PerService[id]
		rows = append(rows, []any{
			id, sr.OverallAccuracy, sr.TotalSamples, sr.FailedSamples, sr.AvgProcessingTimeMs, sr.Error,
		})
	}
	rows = append(rows, []any{})
	s := result.Summary
	rows = append(rows,
		[]any{"services_tested", s.Tested},
		[]any{"services_succeeded", s.Succeeded},
		[]any{"services_failed", s.Failed},
		[]any{"avg_accuracy", s.AvgAccuracy},
		[]any{"avg_latency_ms", s.AvgLatencyMs},
		[]any{"median_latency_ms", s.MedianLatencyMs},
		[]any{"p95_latency_ms", s.P95LatencyMs},
	)
	return writeRows(f, sheet, rows)
}

func writeServiceSheet(f *excelize.File, id string, sr models.ServiceResult) error {
	// Sheet names are capped at 31 characters by the xlsx format.
	sheet := id
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("export: new sheet %s: %w", sheet, err)
	}

	rows := [][]any{
		{"combination", "clinical_scenario", "standard_answer", "recommendations", "hit", "top1_hit", "top3_hit", "processing_time_ms"},
	}

	labels := make([]string, 0, len(sr.CombinationResults))
	for label := range sr.CombinationResults {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		cr := sr.CombinationResults[label]
		for _, d := range cr.Details {
			rows = append(rows, []any{
				label, d.ClinicalScenario, d.StandardAnswer,
				encodeRecommendations(d.Recommendations),
				d.Hit, d.Top1Hit, d.Top3Hit, d.ProcessingTimeMs,
			})
		}
		rows = append(rows, []any{
			label + " stats", "", "",
			fmt.Sprintf("accuracy=%.4f", cr.Accuracy),
			cr.HitSamples, cr.TotalSamples, cr.FailedSamples, cr.AvgProcessingTimeMs,
		})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export: cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("export: write sheet %s: %w", sheet, err)
		}
	}
	return nil
}
