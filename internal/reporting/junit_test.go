package reporting

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/models"
)

func newTestResult() *models.AggregateResult {
	return &models.AggregateResult{
		PerService: map[string]models.ServiceResult{
			"svc-a": {
				ServiceID:       "svc-a",
				OverallAccuracy: 0.5,
				TotalSamples:    4,
				CombinationResults: map[string]models.CombinationResult{
					"combination_a": {
						Combination:         models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1, Label: "combination_a"},
						Accuracy:            1.0,
						TotalSamples:        2,
						HitSamples:          2,
						AvgProcessingTimeMs: 500,
					},
					"combination_b": {
						Combination:         models.Combination{TopScenarios: 3, TopRecommendationsPerScenario: 3, Label: "combination_b"},
						Accuracy:            0,
						TotalSamples:        2,
						HitSamples:          0,
						FailedSamples:       1,
						AvgProcessingTimeMs: 500,
					},
				},
			},
			"svc-down": {ServiceID: "svc-down", Error: "service produced no usable responses"},
		},
		Summary: models.Summary{Tested: 2, Succeeded: 1, Failed: 1},
	}
}

func TestConvertToJUnit_Structure(t *testing.T) {
	suites := ConvertToJUnit("nightly", newTestResult())

	assert.Equal(t, 3, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	require.Len(t, suites.TestSuites, 2)

	// Suites are sorted by service id.
	assert.Equal(t, "nightly/svc-a", suites.TestSuites[0].Name)
	assert.Equal(t, "nightly/svc-down", suites.TestSuites[1].Name)
}

func TestConvertToJUnit_PassingCombination(t *testing.T) {
	suites := ConvertToJUnit("nightly", newTestResult())
	suite := suites.TestSuites[0]
	require.Len(t, suite.TestCases, 2)

	tc := suite.TestCases[0]
	assert.Equal(t, "combination_a/top_s1_top_r1", tc.Name)
	assert.Equal(t, "svc-a", tc.Classname)
	assert.InDelta(t, 1.0, tc.Time, 0.01)
	assert.Nil(t, tc.Failure)
	assert.Nil(t, tc.Error)
}

func TestConvertToJUnit_ZeroHitCombinationFails(t *testing.T) {
	suites := ConvertToJUnit("nightly", newTestResult())
	tc := suites.TestSuites[0].TestCases[1]

	assert.Equal(t, "combination_b/top_s3_top_r3", tc.Name)
	require.NotNil(t, tc.Failure)
	assert.Equal(t, "ZeroAccuracy", tc.Failure.Type)
	assert.Contains(t, tc.Failure.Message, "0/2")
	assert.Contains(t, tc.Failure.Body, "failed_samples=1")
}

func TestConvertToJUnit_ServiceErrorBecomesErroredCase(t *testing.T) {
	suites := ConvertToJUnit("nightly", newTestResult())
	suite := suites.TestSuites[1]

	assert.Equal(t, 1, suite.Tests)
	assert.Equal(t, 1, suite.Errors)
	require.Len(t, suite.TestCases, 1)
	require.NotNil(t, suite.TestCases[0].Error)
	assert.Equal(t, "ServiceError", suite.TestCases[0].Error.Type)
	assert.Equal(t, "service produced no usable responses", suite.TestCases[0].Error.Message)
}

func TestConvertToJUnit_AccuracyProperty(t *testing.T) {
	suites := ConvertToJUnit("nightly", newTestResult())
	props := suites.TestSuites[0].Properties

	propMap := make(map[string]string)
	for _, p := range props {
		propMap[p.Name] = p.Value
	}
	assert.Equal(t, "0.5000", propMap["overall_accuracy"])
}

func TestConvertToJUnit_EmptyResult(t *testing.T) {
	suites := ConvertToJUnit("empty", &models.AggregateResult{})
	assert.Equal(t, 0, suites.Tests)
	assert.Empty(t, suites.TestSuites)
}

func TestWriteJUnitXML_ValidXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xml")

	require.NoError(t, WriteJUnitXML("nightly", newTestResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))

	var parsed JUnitTestSuites
	require.NoError(t, xml.Unmarshal(data, &parsed))
	assert.Equal(t, 3, parsed.Tests)
	assert.Equal(t, 1, parsed.Failures)
	require.Len(t, parsed.TestSuites, 2)
	assert.Contains(t, string(data), "ZeroAccuracy")
}
