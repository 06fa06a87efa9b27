package runner

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/clinbench/recoeval/internal/adapters"
	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/judge"
	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/planner"
)

// ServiceEvaluator evaluates one service across its planned combinations.
// The sample set is shared read-only between combinations.
type ServiceEvaluator struct {
	judge  judge.Judge
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// NewServiceEvaluator wires an evaluator. A nil client uses
// http.DefaultClient; adapters attach their own per-call timeouts.
func NewServiceEvaluator(j judge.Judge, opts Options, client *http.Client, logger *slog.Logger) *ServiceEvaluator {
	opts.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceEvaluator{judge: j, opts: opts, client: client, logger: logger}
}

// Evaluate runs every planned combination against svc concurrently. Failures
// of the whole service (bad shape, invalid combination, zero usable
// responses) come back as ServiceResult.Error, never as a Go error: one bad
// service must not sink the run.
func (e *ServiceEvaluator) Evaluate(ctx context.Context, svc config.Service, samples []models.Sample, user *models.Combination) models.ServiceResult {
	result := models.ServiceResult{
		ServiceID:          svc.ID,
		CombinationResults: map[string]models.CombinationResult{},
	}

	combos, warnings, err := planner.Plan(user, svc)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	for _, w := range warnings {
		e.logger.Warn(w)
	}
	if len(combos) == 0 {
		result.Error = "no combinations to evaluate after applying service caps"
		return result
	}

	adapter, err := adapters.New(svc, e.client)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	r := NewCombinationRunner(adapter, e.judge, e.opts, e.logger.With("service", svc.ID))

	comboResults := make([]models.CombinationResult, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	for i, combo := range combos {
		g.Go(func() error {
			comboResults[i] = r.Run(gctx, samples, combo)
			return nil
		})
	}
	// Runners report failures through their results; the group only carries
	// context propagation.
	_ = g.Wait()

	var totalMs float64
	var hits int
	for _, cr := range comboResults {
		label := cr.Combination.Label
		if label == "" {
			label = cr.Combination.Key()
		}
		result.CombinationResults[label] = cr
		result.TotalSamples += cr.TotalSamples
		result.FailedSamples += cr.FailedSamples
		hits += cr.HitSamples
		totalMs += cr.AvgProcessingTimeMs * float64(cr.TotalSamples)
	}
	if result.TotalSamples > 0 {
		result.OverallAccuracy = float64(hits) / float64(result.TotalSamples)
		result.AvgProcessingTimeMs = totalMs / float64(result.TotalSamples)
	} else {
		result.Error = models.ErrServiceUnavailable.Error()
	}
	return result
}
