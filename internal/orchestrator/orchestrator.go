// Package orchestrator runs evaluations as asynchronous, pollable tasks:
// fan-out across services, progress tracking, partial-failure isolation, and
// artifact export.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/dataset"
	"github.com/clinbench/recoeval/internal/export"
	"github.com/clinbench/recoeval/internal/judge"
	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/runner"
	"github.com/clinbench/recoeval/internal/statistics"
)

// Orchestrator owns the task registry and executes evaluation runs.
type Orchestrator struct {
	registry *registry
	client   *http.Client
	logger   *slog.Logger
}

// Option tunes orchestrator construction.
type Option func(*Orchestrator)

// WithHTTPClient overrides the shared HTTP client used by adapters.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Orchestrator) { o.client = client }
}

// WithRetention overrides terminal-task retention bounds.
func WithRetention(window time.Duration, maxTasks int) Option {
	return func(o *Orchestrator) { o.registry = newRegistry(window, maxTasks) }
}

// New builds an orchestrator.
func New(logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		registry: newRegistry(DefaultRetention, DefaultMaxTasks),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit starts an asynchronous evaluation and returns its task id
// immediately. Input that fails validation still yields a task, transitioned
// straight to failure, so callers always have something to poll.
func (o *Orchestrator) Submit(spec *config.RunSpec, samples []models.Sample) string {
	runCtx, cancel := context.WithTimeout(context.Background(), spec.RunCeiling())
	entry := o.registry.create(cancel)
	id := entry.task.ID

	go o.run(runCtx, cancel, id, spec, samples)
	return id
}

// Poll returns a snapshot of the task, or ErrTaskNotFound for unknown and
// evicted ids.
func (o *Orchestrator) Poll(id string) (models.Task, error) {
	return o.registry.snapshot(id)
}

// Cancel requests cancellation. The task transitions to failure with a
// "cancelled" message once in-flight work has wound down.
func (o *Orchestrator) Cancel(id string) error {
	return o.registry.markCancelled(id)
}

// Wait blocks until the task reaches a terminal state or ctx expires.
func (o *Orchestrator) Wait(ctx context.Context, id string) (models.Task, error) {
	done, err := o.registry.doneChan(id)
	if err != nil {
		return models.Task{}, err
	}
	select {
	case <-done:
		return o.registry.snapshot(id)
	case <-ctx.Done():
		return models.Task{}, ctx.Err()
	}
}

// EvaluateSingle runs one service synchronously and returns its result
// inline, bypassing the task machinery.
func (o *Orchestrator) EvaluateSingle(ctx context.Context, spec *config.RunSpec, svc config.Service, samples []models.Sample) (models.ServiceResult, error) {
	if err := models.ValidateSamples(samples); err != nil {
		return models.ServiceResult{}, err
	}
	j, err := judge.New(spec.Judge)
	if err != nil {
		return models.ServiceResult{}, err
	}
	e := runner.NewServiceEvaluator(j, o.runnerOptions(spec), o.client, o.logger)
	return e.Evaluate(ctx, svc, samples, spec.Combination), nil
}

func (o *Orchestrator) runnerOptions(spec *config.RunSpec) runner.Options {
	strategy := models.DefaultStrategyFlags()
	if spec.Strategy != nil {
		strategy = *spec.Strategy
	}
	return runner.Options{
		Concurrency: spec.Concurrency,
		MaxRetries:  spec.MaxRetries,
		CallTimeout: spec.CallTimeout(),
		Budget:      spec.CombinationBudget(),
		Strategy:    strategy,
	}
}

type serviceCompletion struct {
	id     string
	result models.ServiceResult
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, id string, spec *config.RunSpec, samples []models.Sample) {
	defer cancel()

	o.registry.update(id, func(t *models.Task) {
		t.Status = models.TaskStarted
		t.Message = fmt.Sprintf("evaluating %d services over %d samples", len(spec.Services), len(samples))
	})

	if err := o.validate(spec, samples); err != nil {
		o.fail(id, err.Error())
		return
	}

	j, err := judge.New(spec.Judge)
	if err != nil {
		o.fail(id, err.Error())
		return
	}

	evaluator := runner.NewServiceEvaluator(j, o.runnerOptions(spec), o.client, o.logger.With("task", id))

	total := len(spec.Services)
	completions := make(chan serviceCompletion, total)
	for _, svc := range spec.Services {
		go func() {
			defer func() {
				// A panicking service worker becomes a failed service
				// result, never a crashed run.
				if r := recover(); r != nil {
					o.logger.Error("service worker panicked", "task", id, "service", svc.ID, "panic", r)
					completions <- serviceCompletion{id: svc.ID, result: models.ServiceResult{
						ServiceID: svc.ID,
						Error:     fmt.Sprintf("internal error: %v", r),
					}}
				}
			}()
			completions <- serviceCompletion{id: svc.ID, result: evaluator.Evaluate(ctx, svc, samples, spec.Combination)}
		}()
	}

	perService := make(map[string]models.ServiceResult, total)
	completed := 0
	for completed < total {
		select {
		case c := <-completions:
			perService[c.id] = c.result
			completed++
			pct := completed * 100 / total
			o.registry.update(id, func(t *models.Task) {
				t.Status = models.TaskProgress
				t.ProgressPercentage = pct
				t.Message = fmt.Sprintf("completed %d/%d services", completed, total)
			})
		case <-ctx.Done():
			if o.registry.wasCancelled(id) {
				o.fail(id, "cancelled")
			} else {
				o.fail(id, "timeout: run ceiling exceeded")
			}
			return
		}
	}

	// A cancel can land while the final completion is already queued; an
	// observed cancellation always wins over a success transition.
	if o.registry.wasCancelled(id) {
		o.fail(id, "cancelled")
		return
	}

	result := o.assemble(id, spec, perService)
	o.registry.update(id, func(t *models.Task) {
		t.Status = models.TaskSuccess
		t.ProgressPercentage = 100
		t.Message = "evaluation complete"
		t.Result = result
	})
}

func (o *Orchestrator) validate(spec *config.RunSpec, samples []models.Sample) error {
	if err := models.ValidateSamples(samples); err != nil {
		return err
	}
	if spec.Combination != nil {
		if err := spec.Combination.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) fail(id, msg string) {
	o.registry.update(id, func(t *models.Task) {
		t.Status = models.TaskFailure
		t.Error = msg
	})
}

// assemble builds the aggregate result: the cross-service summary and any
// configured artifacts. Export failures are logged, never fatal.
func (o *Orchestrator) assemble(id string, spec *config.RunSpec, perService map[string]models.ServiceResult) *models.AggregateResult {
	result := &models.AggregateResult{PerService: perService}

	var accuracies []float64
	var latencies []float64
	summary := models.Summary{Tested: len(perService)}
	for _, sr := range perService {
		if sr.Error != "" {
			summary.Failed++
		} else {
			summary.Succeeded++
			accuracies = append(accuracies, sr.OverallAccuracy)
		}
		summary.TotalSamples += sr.TotalSamples
		summary.FailedSamples += sr.FailedSamples
		for _, cr := range sr.CombinationResults {
			for _, d := range cr.Details {
				latencies = append(latencies, float64(d.ProcessingTimeMs))
			}
		}
	}
	if len(accuracies) > 0 {
		var sum float64
		for _, a := range accuracies {
			sum += a
		}
		summary.AvgAccuracy = sum / float64(len(accuracies))
	}
	lat := statistics.SummarizeLatencies(latencies)
	summary.AvgLatencyMs = lat.MeanMs
	summary.MedianLatencyMs = lat.MedianMs
	summary.P95LatencyMs = lat.P95Ms
	result.Summary = summary

	if spec.Export.Dir != "" {
		if err := os.MkdirAll(spec.Export.Dir, 0o755); err != nil {
			o.logger.Warn("export dir", "task", id, "error", err)
			return result
		}
		if spec.Export.CSV {
			path := filepath.Join(spec.Export.Dir, fmt.Sprintf("results_%s.csv", id))
			if err := export.WriteFlatCSV(path, result); err != nil {
				o.logger.Warn("csv export failed", "task", id, "error", err)
			} else {
				result.ExportPath = path
			}
		}
		if spec.Export.Workbook {
			path := filepath.Join(spec.Export.Dir, fmt.Sprintf("results_%s.xlsx", id))
			if err := export.WriteWorkbook(path, result); err != nil {
				o.logger.Warn("workbook export failed", "task", id, "error", err)
			} else {
				result.WorkbookPath = path
			}
		}
	}
	return result
}

// LoadSamples resolves the run spec's sample source.
func LoadSamples(spec *config.RunSpec) ([]models.Sample, error) {
	return dataset.LoadSamples(spec.Samples.Path, spec.Samples.Limit)
}
