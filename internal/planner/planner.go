// Package planner expands a run's combination grid per service.
package planner

import (
	"fmt"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// Plan returns the combinations to evaluate against svc: the default grid,
// plus the optional user pair, de-duplicated by parameter equality and
// filtered by the service's top_scenarios cap. Capped combinations are
// reported as warnings, never as errors; at least the grid minimum (1,1)
// always survives a positive cap.
func Plan(user *models.Combination, svc config.Service) ([]models.Combination, []string, error) {
	combos := models.DefaultCombinations()

	if user != nil {
		if err := user.Validate(); err != nil {
			return nil, nil, err
		}
		c := *user
		if c.Label == "" {
			c.Label = "variant"
		}
		duplicate := false
		for _, existing := range combos {
			if existing.Equal(c) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			combos = append(combos, c)
		}
	}

	if svc.MaxScenarios <= 0 {
		return combos, nil, nil
	}

	kept := combos[:0]
	var warnings []string
	for _, c := range combos {
		if c.TopScenarios > svc.MaxScenarios {
			warnings = append(warnings, fmt.Sprintf(
				"service %s: combination %s skipped, top_scenarios %d exceeds cap %d",
				svc.ID, c.Key(), c.TopScenarios, svc.MaxScenarios))
			continue
		}
		kept = append(kept, c)
	}
	return kept, warnings, nil
}
