package models

import "fmt"

// Sample is one labeled clinical scenario drawn from the evaluation dataset.
// ClinicalScenario is the free-text presentation (often Chinese) sent to the
// services under test; StandardAnswer is the gold-standard examination item.
type Sample struct {
	ClinicalScenario string         `json:"clinical_scenario" yaml:"clinical_scenario"`
	StandardAnswer   string         `json:"standard_answer" yaml:"standard_answer"`
	PatientInfo      map[string]any `json:"patient_info,omitempty" yaml:"patient_info,omitempty"`
	ClinicalContext  map[string]any `json:"clinical_context,omitempty" yaml:"clinical_context,omitempty"`
}

// Validate reports whether the sample carries enough information to be replayed.
func (s Sample) Validate() error {
	if s.ClinicalScenario == "" {
		return &ValidationError{Field: "clinical_scenario", Reason: "must not be empty"}
	}
	if s.StandardAnswer == "" {
		return &ValidationError{Field: "standard_answer", Reason: "must not be empty"}
	}
	return nil
}

// ValidateSamples checks every sample in a set, reporting the first offender
// with its position for operator-friendly diagnostics.
func ValidateSamples(samples []Sample) error {
	if len(samples) == 0 {
		return &ValidationError{Field: "samples", Reason: "at least one sample is required"}
	}
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}
