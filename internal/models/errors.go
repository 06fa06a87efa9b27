package models

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned when a task id is unknown or has been evicted.
var ErrTaskNotFound = errors.New("task not found")

// ErrJudgeUnavailable indicates the model-assisted judge could not produce a
// verdict; callers fall back to exact matching.
var ErrJudgeUnavailable = errors.New("judge unavailable")

// ErrServiceUnavailable marks a service whose calls all failed: every sample
// was exhausted and no combination produced a usable response.
var ErrServiceUnavailable = errors.New("service produced no usable responses")

// ValidationError reports malformed input (samples, combinations, run specs).
// It is always detected before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
