// Package runner replays samples against one service and aggregates per
// combination and per service accuracy and latency.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/clinbench/recoeval/internal/adapters"
	"github.com/clinbench/recoeval/internal/judge"
	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/statistics"
)

// Options are the execution knobs shared by every combination of a run.
type Options struct {
	Concurrency int
	// MaxRetries is the number of retries after the first attempt, applied
	// to transient failures only.
	MaxRetries  int
	CallTimeout time.Duration
	// Budget is the per-combination wall clock. Once it is spent, samples
	// not yet dispatched are failed; in-flight calls run to completion.
	Budget         time.Duration
	InitialBackoff time.Duration
	Strategy       models.StrategyFlags
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	if o.Budget <= 0 {
		o.Budget = 15 * time.Minute
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
}

// CombinationRunner evaluates one combination over a sample set through a
// bounded worker pool.
type CombinationRunner struct {
	adapter adapters.ServiceAdapter
	judge   judge.Judge
	opts    Options
	logger  *slog.Logger
}

// NewCombinationRunner wires a runner for one service adapter.
func NewCombinationRunner(adapter adapters.ServiceAdapter, j judge.Judge, opts Options, logger *slog.Logger) *CombinationRunner {
	opts.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &CombinationRunner{adapter: adapter, judge: j, opts: opts, logger: logger}
}

type sampleTask struct {
	index  int
	sample models.Sample
}

// Run evaluates every sample under the given combination. Samples that fail
// after retries are excluded from the accuracy denominator and counted in
// FailedSamples. Input order is preserved in Details.
func (r *CombinationRunner) Run(ctx context.Context, samples []models.Sample, combination models.Combination) models.CombinationResult {
	details := make([]*models.EvaluationDetail, len(samples))
	deadline := time.Now().Add(r.opts.Budget)

	var wg sync.WaitGroup
	var failed sync.Map

	pool, err := ants.NewPoolWithFunc(r.opts.Concurrency, func(arg any) {
		defer wg.Done()
		task := arg.(*sampleTask)
		detail, err := r.evaluateSample(ctx, task.sample, combination)
		if err != nil {
			failed.Store(task.index, struct{}{})
			r.logger.Warn("sample failed",
				"combination", combination.Key(),
				"sample", task.index,
				"error", err)
			return
		}
		details[task.index] = &detail
	})
	if err != nil {
		// Pool construction only fails on invalid size; treat the whole
		// combination as failed rather than panic.
		return models.CombinationResult{Combination: combination, FailedSamples: len(samples)}
	}
	defer pool.Release()

	failedCount := 0
	for i, sample := range samples {
		// Budget and cancellation are observed between dispatches; work
		// already in flight is allowed to finish.
		if ctx.Err() != nil || time.Now().After(deadline) {
			failedCount++
			continue
		}
		wg.Add(1)
		task := &sampleTask{index: i, sample: sample}
		if err := pool.Invoke(task); err != nil {
			wg.Done()
			failed.Store(i, struct{}{})
		}
	}
	wg.Wait()

	return r.aggregate(combination, details, failedCount, &failed)
}

func (r *CombinationRunner) evaluateSample(ctx context.Context, sample models.Sample, combination models.Combination) (models.EvaluationDetail, error) {
	req := models.CanonicalRequest{
		Scenario:        sample.ClinicalScenario,
		PatientInfo:     sample.PatientInfo,
		ClinicalContext: sample.ClinicalContext,
		Strategy:        r.opts.Strategy,
		Combination:     combination,
	}
	native, err := r.adapter.BuildRequest(sample, req)
	if err != nil {
		return models.EvaluationDetail{}, err
	}

	resp, err := r.callWithRetry(ctx, native)
	if err != nil {
		return models.EvaluationDetail{}, err
	}

	result, err := r.adapter.Parse(resp)
	if err != nil {
		return models.EvaluationDetail{}, err
	}

	recs := truncate(result.Recommendations, combination)
	verdict, err := r.judge.Judge(ctx, recs, sample.StandardAnswer)
	if err != nil {
		return models.EvaluationDetail{}, err
	}

	return models.EvaluationDetail{
		ClinicalScenario: sample.ClinicalScenario,
		StandardAnswer:   sample.StandardAnswer,
		Recommendations:  recs,
		PerScenarioHits:  verdict.PerScenarioHits,
		Hit:              verdict.Hit,
		Top1Hit:          verdict.Top1Hit,
		Top3Hit:          verdict.Top3Hit,
		JudgeFallback:    verdict.FellBack,
		ProcessingTimeMs: result.ProcessingTimeMs,
	}, nil
}

func (r *CombinationRunner) callWithRetry(ctx context.Context, native adapters.NativeRequest) (adapters.NativeResponse, error) {
	backoff := r.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		// The call context is detached from the run context: a cancelled run
		// lets calls already issued complete, and cancellation is observed
		// between attempts and between dispatches.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.CallTimeout)
		resp, err := r.adapter.Call(callCtx, native)
		cancel()
		if err == nil {
			return resp, nil
		}
		if !adapters.IsTransient(err) || attempt >= r.opts.MaxRetries || ctx.Err() != nil {
			return adapters.NativeResponse{}, err
		}
		select {
		case <-ctx.Done():
			return adapters.NativeResponse{}, err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// truncate clamps the response to the combination's limits so that judging
// never sees more groups or items than were requested.
func truncate(recs [][]string, combination models.Combination) [][]string {
	s := combination.TopScenarios
	if s > len(recs) {
		s = len(recs)
	}
	out := make([][]string, 0, s)
	for _, group := range recs[:s] {
		r := combination.TopRecommendationsPerScenario
		if r > len(group) {
			r = len(group)
		}
		out = append(out, group[:r])
	}
	return out
}

func (r *CombinationRunner) aggregate(combination models.Combination, details []*models.EvaluationDetail, budgetFailed int, failed *sync.Map) models.CombinationResult {
	result := models.CombinationResult{
		Combination:   combination,
		FailedSamples: budgetFailed,
	}
	failed.Range(func(_, _ any) bool {
		result.FailedSamples++
		return true
	})

	var totalMs int64
	var hitFlags []float64
	for _, d := range details {
		if d == nil {
			continue
		}
		result.Details = append(result.Details, *d)
		result.TotalSamples++
		totalMs += d.ProcessingTimeMs
		if d.Hit {
			result.HitSamples++
			hitFlags = append(hitFlags, 1)
		} else {
			hitFlags = append(hitFlags, 0)
		}
	}
	if result.TotalSamples > 0 {
		result.Accuracy = float64(result.HitSamples) / float64(result.TotalSamples)
		result.AvgProcessingTimeMs = float64(totalMs) / float64(result.TotalSamples)
	}
	if result.TotalSamples >= 2 {
		ci := statistics.BootstrapCI(hitFlags, 0.95)
		result.HitRateCI = &models.ConfidenceInterval{
			Lower:           ci.Lower,
			Upper:           ci.Upper,
			Mean:            ci.Mean,
			ConfidenceLevel: ci.ConfidenceLevel,
		}
	}
	return result
}
