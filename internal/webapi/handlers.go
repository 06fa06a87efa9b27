// Package webapi exposes the evaluation orchestrator over HTTP: submit,
// poll, cancel, and a synchronous single-service endpoint.
package webapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/orchestrator"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0"

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	orch *orchestrator.Orchestrator
}

// NewHandlers creates Handlers backed by the given orchestrator.
func NewHandlers(orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{orch: orch}
}

// Router builds the API router with CORS middleware.
func Router(orch *orchestrator.Orchestrator) http.Handler {
	h := NewHandlers(orch)
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/evaluations", h.HandleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/evaluations/single", h.HandleSingle).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/tasks/{id}", h.HandleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tasks/{id}", h.HandleCancelTask).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// decodeRequest parses and defaults an evaluation request, resolving samples
// from the inline list or the configured path.
func decodeRequest(r *http.Request) (*config.RunSpec, []models.Sample, error) {
	var req EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return resolveRequest(&req)
}

func resolveRequest(req *EvaluationRequest) (*config.RunSpec, []models.Sample, error) {
	spec := req.RunSpec
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}

	samples := req.SamplesInline
	if len(samples) == 0 {
		if spec.Samples.Path == "" {
			return nil, nil, &models.ValidationError{Field: "samples", Reason: "either samples_inline or samples.path is required"}
		}
		loaded, err := orchestrator.LoadSamples(&spec)
		if err != nil {
			return nil, nil, &models.ValidationError{Field: "samples.path", Reason: err.Error()}
		}
		samples = loaded
	}
	if err := models.ValidateSamples(samples); err != nil {
		return nil, nil, err
	}
	return &spec, samples, nil
}

// HandleSubmit accepts a batch evaluation and returns its task id.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	spec, samples, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := h.orch.Submit(spec, samples)
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id})
}

// HandleSingle evaluates one service synchronously and returns its result.
func (h *Handlers) HandleSingle(w http.ResponseWriter, r *http.Request) {
	var req SingleEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, samples, err := resolveRequest(&req.EvaluationRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var svc *config.Service
	for i := range spec.Services {
		if spec.Services[i].ID == req.ServiceID {
			svc = &spec.Services[i]
			break
		}
	}
	if svc == nil {
		writeError(w, http.StatusBadRequest, "service_id does not match any configured service")
		return
	}

	result, err := h.orch.EvaluateSingle(r.Context(), spec, *svc, samples)
	if err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetTask returns a task snapshot.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := h.orch.Poll(id)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleCancelTask requests cancellation of a running task.
func (h *Handlers) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.orch.Cancel(id); err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
