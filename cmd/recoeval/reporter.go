package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/reporting"
)

// reporter prints run progress and the final summary. Column alignment uses
// display width so Chinese scenario and service names line up.
type reporter struct {
	w        io.Writer
	quiet    bool
	lastPct  int
	termCols int
}

func newReporter(w io.Writer, quiet bool) *reporter {
	cols := 100
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if c, _, err := term.GetSize(int(f.Fd())); err == nil && c > 40 {
			cols = c
		}
	}
	return &reporter{w: w, quiet: quiet, lastPct: -1, termCols: cols}
}

func (r *reporter) println(msg string) {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.w, msg)
}

func (r *reporter) start(name string, services, samples int) {
	r.println(fmt.Sprintf("run %q: %d services, %d samples", name, services, samples))
}

func (r *reporter) progress(task models.Task) {
	if r.quiet || task.ProgressPercentage == r.lastPct {
		return
	}
	r.lastPct = task.ProgressPercentage
	if task.Status == models.TaskProgress || task.Status == models.TaskStarted {
		r.println(fmt.Sprintf("  [%3d%%] %s", task.ProgressPercentage, task.Message))
	}
}

func (r *reporter) printResult(result *models.AggregateResult) {
	if r.quiet || result == nil {
		return
	}

	serviceIDs := make([]string, 0, len(result.PerService))
	idWidth := runewidth.StringWidth("service")
	for id := range result.PerService {
		serviceIDs = append(serviceIDs, id)
		if w := runewidth.StringWidth(id); w > idWidth {
			idWidth = w
		}
	}
	sort.Strings(serviceIDs)

	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "%s  %9s  %7s  %6s  %9s  %s\n",
		runewidth.FillRight("service", idWidth), "accuracy", "samples", "failed", "avg ms", "status")
	for _, id := range serviceIDs {
		sr := result.PerService[id]
		status := "ok"
		if sr.Error != "" {
			status = truncateToWidth(sr.Error, r.termCols-idWidth-40)
		}
		fmt.Fprintf(r.w, "%s  %8.1f%%  %7d  %6d  %9.1f  %s\n",
			runewidth.FillRight(id, idWidth),
			sr.OverallAccuracy*100, sr.TotalSamples, sr.FailedSamples, sr.AvgProcessingTimeMs, status)

		labels := make([]string, 0, len(sr.CombinationResults))
		for label := range sr.CombinationResults {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			cr := sr.CombinationResults[label]
			fmt.Fprintf(r.w, "%s    %s %s: %.1f%% (%d/%d hit, %d failed)\n",
				runewidth.FillRight("", idWidth),
				label, cr.Combination.Key(),
				cr.Accuracy*100, cr.HitSamples, cr.TotalSamples, cr.FailedSamples)
		}
	}

	s := result.Summary
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "services: %d tested, %d succeeded, %d failed\n", s.Tested, s.Succeeded, s.Failed)
	fmt.Fprintf(r.w, "accuracy: %.1f%% avg (%s) | latency: %.0fms avg, %.0fms median, %.0fms p95\n",
		s.AvgAccuracy*100, reporting.InterpretAccuracy(s.AvgAccuracy), s.AvgLatencyMs, s.MedianLatencyMs, s.P95LatencyMs)
	if note := reporting.InterpretFailureRate(s.FailedSamples, s.TotalSamples); note != "" {
		fmt.Fprintln(r.w, note)
	}
	if result.ExportPath != "" {
		fmt.Fprintf(r.w, "csv: %s\n", result.ExportPath)
	}
	if result.WorkbookPath != "" {
		fmt.Fprintf(r.w, "workbook: %s\n", result.WorkbookPath)
	}
}

func truncateToWidth(s string, max int) string {
	if max < 10 {
		max = 10
	}
	return runewidth.Truncate(s, max, "...")
}
