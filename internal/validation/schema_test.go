package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRunSpecYAML = `name: nightly
services:
  - id: svc-a
    base_url: http://localhost:8001
    shape: structured
  - id: svc-d
    base_url: http://localhost:8004
    shape: stream
samples:
  path: data/samples.xlsx
  limit: 50
combination:
  top_scenarios: 5
  top_recommendations_per_scenario: 2
judge:
  mode: model
  model: gpt-4o
`

func TestValidateRunSpecBytesValid(t *testing.T) {
	errs := ValidateRunSpecBytes([]byte(validRunSpecYAML))
	assert.Empty(t, errs)
}

func TestValidateRunSpecBytesMissingRequired(t *testing.T) {
	errs := ValidateRunSpecBytes([]byte("name: x\n"))
	require.NotEmpty(t, errs)
}

func TestValidateRunSpecBytesBadShape(t *testing.T) {
	doc := `
services:
  - id: svc
    base_url: http://x
    shape: soap
samples:
  path: a.csv
`
	errs := ValidateRunSpecBytes([]byte(doc))
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "/services/0/shape")
}

func TestValidateRunSpecBytesBadCombination(t *testing.T) {
	doc := `
services:
  - id: svc
    base_url: http://x
    shape: flat
samples:
  path: a.csv
combination:
  top_scenarios: 0
  top_recommendations_per_scenario: 1
`
	errs := ValidateRunSpecBytes([]byte(doc))
	require.NotEmpty(t, errs)
}

func TestValidateRunSpecBytesUnparseableYAML(t *testing.T) {
	errs := ValidateRunSpecBytes([]byte("services: [unclosed"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "YAML parse error")
}

func TestValidateRunSpecFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRunSpecYAML), 0o644))

	errs, err := ValidateRunSpecFile(path)
	require.NoError(t, err)
	assert.Empty(t, errs)

	_, err = ValidateRunSpecFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
