package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/models"
)

const minimalSpec = `
name: nightly
services:
  - id: svc-a
    base_url: http://localhost:8001
    shape: structured
samples:
  path: testdata/samples.xlsx
`

func TestParseAppliesDefaults(t *testing.T) {
	spec, err := Parse([]byte(minimalSpec))
	require.NoError(t, err)

	assert.Equal(t, "nightly", spec.Name)
	assert.Equal(t, DefaultConcurrency, spec.Concurrency)
	assert.Equal(t, DefaultMaxRetries, spec.MaxRetries)
	assert.Equal(t, DefaultCallTimeoutSec, spec.CallTimeoutSec)
	assert.Equal(t, DefaultCombinationBudgetSec, spec.CombinationBudgetSec)
	assert.Equal(t, DefaultRunCeilingSec, spec.RunCeilingSec)
	assert.Equal(t, "exact", spec.Judge.Mode)
	require.NotNil(t, spec.Strategy)
	assert.True(t, spec.Strategy.EnableReranking)
	assert.InDelta(t, 0.3, spec.Strategy.SimilarityThreshold, 1e-9)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(minimalSpec+"export:\n  dir: out\n  csv: true\n"), 0o644))

	spec, err := Load(specPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "testdata", "samples.xlsx"), spec.Samples.Path)
	assert.Equal(t, filepath.Join(dir, "out"), spec.Export.Dir)
}

func TestParseRejectsEmptyServices(t *testing.T) {
	_, err := Parse([]byte("name: x\nservices: []\nsamples:\n  path: a.csv\n"))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestParseRejectsDuplicateServiceIDs(t *testing.T) {
	doc := `
name: x
services:
  - id: svc-a
    base_url: http://a
    shape: flat
  - id: svc-a
    base_url: http://b
    shape: flat
samples:
  path: a.csv
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseRejectsInvalidCombination(t *testing.T) {
	doc := minimalSpec + `
combination:
  top_scenarios: 0
  top_recommendations_per_scenario: 2
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestParseRejectsUnknownJudgeMode(t *testing.T) {
	doc := minimalSpec + `
judge:
  mode: vibes
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "judge.mode")
}
