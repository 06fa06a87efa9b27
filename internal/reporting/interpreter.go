package reporting

import "fmt"

// InterpretAccuracy returns a plain-language label for an accuracy (0-1).
func InterpretAccuracy(accuracy float64) string {
	pct := accuracy * 100
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretFailureRate explains how many samples never produced a usable
// response, which deflates confidence in the accuracy figure.
func InterpretFailureRate(failed, total int) string {
	if total == 0 || failed == 0 {
		return ""
	}
	pct := float64(failed) / float64(total) * 100
	if pct >= 50 {
		return fmt.Sprintf("Over half the samples failed (%d/%d); accuracy is computed on the remainder and may not be representative.", failed, total)
	}
	return fmt.Sprintf("%d/%d samples failed and were excluded from accuracy.", failed, total)
}
