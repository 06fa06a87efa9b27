package models

import "fmt"

// Combination is one (top_scenarios, top_recommendations_per_scenario)
// parameter pair evaluated against a service.
type Combination struct {
	TopScenarios                  int    `json:"top_scenarios" yaml:"top_scenarios"`
	TopRecommendationsPerScenario int    `json:"top_recommendations_per_scenario" yaml:"top_recommendations_per_scenario"`
	Label                         string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Key returns the historical result-map key for this combination,
// e.g. "top_s1_top_r3".
func (c Combination) Key() string {
	return fmt.Sprintf("top_s%d_top_r%d", c.TopScenarios, c.TopRecommendationsPerScenario)
}

// Equal compares the two integer parameters; labels are presentation only.
func (c Combination) Equal(other Combination) bool {
	return c.TopScenarios == other.TopScenarios &&
		c.TopRecommendationsPerScenario == other.TopRecommendationsPerScenario
}

// Validate rejects non-positive parameters.
func (c Combination) Validate() error {
	if c.TopScenarios < 1 {
		return &ValidationError{Field: "top_scenarios", Reason: fmt.Sprintf("must be >= 1, got %d", c.TopScenarios)}
	}
	if c.TopRecommendationsPerScenario < 1 {
		return &ValidationError{Field: "top_recommendations_per_scenario", Reason: fmt.Sprintf("must be >= 1, got %d", c.TopRecommendationsPerScenario)}
	}
	return nil
}

// DefaultCombinations returns the standard evaluation grid. The labels are
// stable identifiers carried through results and exports.
func DefaultCombinations() []Combination {
	return []Combination{
		{TopScenarios: 1, TopRecommendationsPerScenario: 1, Label: "combination_a"},
		{TopScenarios: 3, TopRecommendationsPerScenario: 3, Label: "combination_b"},
		{TopScenarios: 1, TopRecommendationsPerScenario: 3, Label: "combination_c"},
		{TopScenarios: 3, TopRecommendationsPerScenario: 1, Label: "combination_d"},
	}
}
