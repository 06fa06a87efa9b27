// Package config loads and defaults the run spec: the YAML document that
// names the services under test, the sample source, and the knobs of a run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/utils"
)

// Default knob values applied by ApplyDefaults.
const (
	DefaultConcurrency          = 5
	DefaultMaxRetries           = 3
	DefaultCallTimeoutSec       = 60
	DefaultCombinationBudgetSec = 900
	DefaultRunCeilingSec        = 7200
)

// Service describes one recommendation service under test.
type Service struct {
	ID      string `yaml:"id" json:"id"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Shape selects the adapter: structured, simple, flat, or stream.
	Shape string `yaml:"shape" json:"shape"`
	// MaxScenarios caps top_scenarios for this service; 0 means no cap.
	MaxScenarios int `yaml:"max_scenarios,omitempty" json:"max_scenarios,omitempty"`
	// Params carries shape-specific request defaults, decoded by the adapter.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Samples points at the labeled dataset for the run.
type Samples struct {
	Path  string `yaml:"path" json:"path"`
	Limit int    `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// Judge configures hit judging. Mode "exact" needs nothing else; mode "model"
// uses a chat-completion judge with string-match fallback.
type Judge struct {
	Mode      string `yaml:"mode,omitempty" json:"mode,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	// CacheDir, when set, caches model verdicts on disk keyed by input hash.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// Export configures result artifacts. Empty fields disable the artifact.
type Export struct {
	Dir      string `yaml:"dir,omitempty" json:"dir,omitempty"`
	CSV      bool   `yaml:"csv,omitempty" json:"csv,omitempty"`
	Workbook bool   `yaml:"workbook,omitempty" json:"workbook,omitempty"`
}

// RunSpec is the top-level run configuration.
type RunSpec struct {
	Name     string    `yaml:"name" json:"name"`
	Services []Service `yaml:"services" json:"services"`
	Samples  Samples   `yaml:"samples" json:"samples"`

	// Combination optionally adds a user pair to the default grid.
	Combination *models.Combination `yaml:"combination,omitempty" json:"combination,omitempty"`

	Strategy *models.StrategyFlags `yaml:"strategy,omitempty" json:"strategy,omitempty"`

	Concurrency          int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	MaxRetries           int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	CallTimeoutSec       int `yaml:"call_timeout_sec,omitempty" json:"call_timeout_sec,omitempty"`
	CombinationBudgetSec int `yaml:"combination_budget_sec,omitempty" json:"combination_budget_sec,omitempty"`
	RunCeilingSec        int `yaml:"run_ceiling_sec,omitempty" json:"run_ceiling_sec,omitempty"`

	Judge  Judge  `yaml:"judge,omitempty" json:"judge,omitempty"`
	Export Export `yaml:"export,omitempty" json:"export,omitempty"`
}

// Load reads and parses a run spec file, applies defaults, and validates it.
// Relative sample and export paths are resolved against the spec file's
// directory.
func Load(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run spec: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(path)
	spec.Samples.Path = utils.ResolvePath(spec.Samples.Path, baseDir)
	spec.Export.Dir = utils.ResolvePath(spec.Export.Dir, baseDir)
	spec.Judge.CacheDir = utils.ResolvePath(spec.Judge.CacheDir, baseDir)
	return spec, nil
}

// Parse parses run spec YAML, applies defaults, and validates it.
func Parse(data []byte) (*RunSpec, error) {
	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing run spec: %w", err)
	}
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ApplyDefaults fills unset knobs with their defaults.
func (s *RunSpec) ApplyDefaults() {
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.CallTimeoutSec <= 0 {
		s.CallTimeoutSec = DefaultCallTimeoutSec
	}
	if s.CombinationBudgetSec <= 0 {
		s.CombinationBudgetSec = DefaultCombinationBudgetSec
	}
	if s.RunCeilingSec <= 0 {
		s.RunCeilingSec = DefaultRunCeilingSec
	}
	if s.Judge.Mode == "" {
		s.Judge.Mode = "exact"
	}
	if s.Strategy == nil {
		flags := models.DefaultStrategyFlags()
		s.Strategy = &flags
	}
}

// Validate checks structural requirements that the JSON schema cannot express
// once defaults are applied.
func (s *RunSpec) Validate() error {
	if len(s.Services) == 0 {
		return &models.ValidationError{Field: "services", Reason: "at least one service is required"}
	}
	seen := make(map[string]bool, len(s.Services))
	for i, svc := range s.Services {
		if svc.ID == "" {
			return &models.ValidationError{Field: fmt.Sprintf("services[%d].id", i), Reason: "must not be empty"}
		}
		if seen[svc.ID] {
			return &models.ValidationError{Field: fmt.Sprintf("services[%d].id", i), Reason: fmt.Sprintf("duplicate id %q", svc.ID)}
		}
		seen[svc.ID] = true
		if svc.BaseURL == "" {
			return &models.ValidationError{Field: fmt.Sprintf("services[%d].base_url", i), Reason: "must not be empty"}
		}
	}
	if s.Combination != nil {
		if err := s.Combination.Validate(); err != nil {
			return err
		}
	}
	if s.Judge.Mode != "exact" && s.Judge.Mode != "model" {
		return &models.ValidationError{Field: "judge.mode", Reason: fmt.Sprintf("must be exact or model, got %q", s.Judge.Mode)}
	}
	return nil
}

// CallTimeout returns the per-call timeout as a duration.
func (s *RunSpec) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSec) * time.Second
}

// CombinationBudget returns the per-combination wall-clock budget.
func (s *RunSpec) CombinationBudget() time.Duration {
	return time.Duration(s.CombinationBudgetSec) * time.Second
}

// RunCeiling returns the whole-run deadline.
func (s *RunSpec) RunCeiling() time.Duration {
	return time.Duration(s.RunCeilingSec) * time.Second
}
