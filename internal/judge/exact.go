package judge

import (
	"context"

	"github.com/clinbench/recoeval/internal/models"
)

// Exact judges by normalized string equality. It never returns an error.
type Exact struct{}

// NewExact returns the exact-match judge.
func NewExact() *Exact { return &Exact{} }

// Judge marks scenario i as hit when the answer appears in group i. The
// overall hit requires at least one group hit. Empty answers and empty
// recommendation sets are misses, never errors.
func (e *Exact) Judge(_ context.Context, recommendations [][]string, standardAnswer string) (models.Verdict, error) {
	verdict := models.Verdict{PerScenarioHits: make([]int, len(recommendations))}

	target := Normalize(standardAnswer)
	if target == "" || len(recommendations) == 0 {
		return verdict, nil
	}

	for i, group := range recommendations {
		for _, item := range group {
			if Normalize(item) == target {
				verdict.PerScenarioHits[i] = 1
				verdict.Hit = true
				break
			}
		}
	}

	first := flatten(recommendations)
	if len(first) > 0 && Normalize(first[0]) == target {
		verdict.Top1Hit = true
	}
	for i, item := range first {
		if i >= 3 {
			break
		}
		if Normalize(item) == target {
			verdict.Top3Hit = true
			break
		}
	}
	return verdict, nil
}
