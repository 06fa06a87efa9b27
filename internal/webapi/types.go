package webapi

import (
	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// EvaluationRequest is the body of POST /api/v1/evaluations. The run spec
// fields are embedded; samples come either from the spec's sample path or
// inline.
type EvaluationRequest struct {
	config.RunSpec
	SamplesInline []models.Sample `json:"samples_inline,omitempty"`
}

// SingleEvaluationRequest is the body of POST /api/v1/evaluations/single.
// ServiceID selects which of the spec's services to evaluate synchronously.
type SingleEvaluationRequest struct {
	EvaluationRequest
	ServiceID string `json:"service_id"`
}

// SubmitResponse acknowledges an accepted evaluation.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
