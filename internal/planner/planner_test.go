package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

func keys(combos []models.Combination) []string {
	out := make([]string, 0, len(combos))
	for _, c := range combos {
		out = append(out, c.Key())
	}
	return out
}

func TestPlanDefaultGrid(t *testing.T) {
	combos, warnings, err := Plan(nil, config.Service{ID: "svc"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.ElementsMatch(t,
		[]string{"top_s1_top_r1", "top_s3_top_r3", "top_s1_top_r3", "top_s3_top_r1"},
		keys(combos))
}

func TestPlanAppendsUserCombination(t *testing.T) {
	user := &models.Combination{TopScenarios: 5, TopRecommendationsPerScenario: 2}
	combos, warnings, err := Plan(user, config.Service{ID: "svc"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, combos, 5)
	assert.Equal(t, "top_s5_top_r2", combos[4].Key())
	assert.Equal(t, "variant", combos[4].Label)
}

func TestPlanDeduplicatesUserCombination(t *testing.T) {
	// A user pair matching a default keeps the default's label.
	user := &models.Combination{TopScenarios: 3, TopRecommendationsPerScenario: 3}
	combos, _, err := Plan(user, config.Service{ID: "svc"})
	require.NoError(t, err)
	require.Len(t, combos, 4)
	for _, c := range combos {
		assert.NotEqual(t, "variant", c.Label)
	}
}

func TestPlanIdempotent(t *testing.T) {
	user := &models.Combination{TopScenarios: 2, TopRecommendationsPerScenario: 2}
	first, _, err := Plan(user, config.Service{ID: "svc"})
	require.NoError(t, err)
	second, _, err := Plan(user, config.Service{ID: "svc"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlanCapsScenarios(t *testing.T) {
	svc := config.Service{ID: "svc-simple", MaxScenarios: 2}
	combos, warnings, err := Plan(nil, svc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top_s1_top_r1", "top_s1_top_r3"}, keys(combos))
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "svc-simple")
}

func TestPlanRejectsNonPositiveUserPair(t *testing.T) {
	user := &models.Combination{TopScenarios: 0, TopRecommendationsPerScenario: 1}
	_, _, err := Plan(user, config.Service{ID: "svc"})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
