package statistics

import "github.com/montanaflynn/stats"

// LatencySummary digests a set of per-sample latencies.
type LatencySummary struct {
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// SummarizeLatencies computes mean, median, and p95 over latencies in
// milliseconds. An empty input yields a zero summary.
func SummarizeLatencies(latenciesMs []float64) LatencySummary {
	if len(latenciesMs) == 0 {
		return LatencySummary{}
	}
	data := stats.Float64Data(latenciesMs)
	// These only fail on empty input, which is handled above.
	m, _ := data.Mean()
	med, _ := data.Median()
	p95, _ := data.Percentile(95)
	return LatencySummary{MeanMs: m, MedianMs: med, P95Ms: p95}
}
