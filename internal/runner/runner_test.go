package runner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/adapters"
	"github.com/clinbench/recoeval/internal/judge"
	"github.com/clinbench/recoeval/internal/models"
)

// fakeAdapter scripts responses per call without a network.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   int
	handler func(call int, scenario string) ([][]string, error)
}

func (f *fakeAdapter) Shape() adapters.Shape { return adapters.ShapeStructured }

func (f *fakeAdapter) BuildRequest(sample models.Sample, _ models.CanonicalRequest) (adapters.NativeRequest, error) {
	return adapters.NativeRequest{URL: "fake", Payload: []byte(sample.ClinicalScenario)}, nil
}

func (f *fakeAdapter) Call(_ context.Context, req adapters.NativeRequest) (adapters.NativeResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	recs, err := f.handler(n, string(req.Payload))
	if err != nil {
		return adapters.NativeResponse{}, err
	}
	body, _ := json.Marshal(recs)
	return adapters.NativeResponse{Body: body, ElapsedMs: 5}, nil
}

func (f *fakeAdapter) Parse(resp adapters.NativeResponse) (models.CanonicalResult, error) {
	var recs [][]string
	if err := json.Unmarshal(resp.Body, &recs); err != nil {
		return models.CanonicalResult{}, err
	}
	return models.CanonicalResult{Recommendations: recs, ProcessingTimeMs: resp.ElapsedMs}, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testOptions() Options {
	return Options{
		Concurrency:    2,
		MaxRetries:     2,
		CallTimeout:    time.Second,
		Budget:         time.Minute,
		InitialBackoff: time.Millisecond,
		Strategy:       models.DefaultStrategyFlags(),
	}
}

var testSamples = []models.Sample{
	{ClinicalScenario: "胸痛", StandardAnswer: "心电图"},
	{ClinicalScenario: "头痛", StandardAnswer: "头颅CT"},
	{ClinicalScenario: "腹痛", StandardAnswer: "腹部超声"},
}

func TestRunAggregatesInInputOrder(t *testing.T) {
	adapter := &fakeAdapter{handler: func(_ int, scenario string) ([][]string, error) {
		switch scenario {
		case "胸痛":
			return [][]string{{"心电图"}}, nil
		case "头痛":
			return [][]string{{"腰椎MRI"}}, nil
		default:
			return [][]string{{"腹部超声"}}, nil
		}
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1, Label: "combination_a"}
	result := r.Run(context.Background(), testSamples, combo)

	assert.Equal(t, 3, result.TotalSamples)
	assert.Equal(t, 2, result.HitSamples)
	assert.Zero(t, result.FailedSamples)
	assert.InDelta(t, 2.0/3.0, result.Accuracy, 1e-9)
	assert.InDelta(t, 5, result.AvgProcessingTimeMs, 1e-9)

	require.Len(t, result.Details, 3)
	assert.Equal(t, "胸痛", result.Details[0].ClinicalScenario)
	assert.Equal(t, "头痛", result.Details[1].ClinicalScenario)
	assert.Equal(t, "腹痛", result.Details[2].ClinicalScenario)
	assert.True(t, result.Details[0].Hit)
	assert.False(t, result.Details[1].Hit)

	require.NotNil(t, result.HitRateCI)
	assert.InDelta(t, 2.0/3.0, result.HitRateCI.Mean, 1e-9)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	adapter := &fakeAdapter{handler: func(call int, _ string) ([][]string, error) {
		if call <= 2 {
			return nil, &adapters.AdapterError{Transient: true, Reason: "503"}
		}
		return [][]string{{"心电图"}}, nil
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(context.Background(), testSamples[:1], combo)

	assert.Equal(t, 1, result.TotalSamples)
	assert.Zero(t, result.FailedSamples)
	assert.Equal(t, 3, adapter.callCount())
}

func TestRunExcludesExhaustedSamples(t *testing.T) {
	adapter := &fakeAdapter{handler: func(_ int, scenario string) ([][]string, error) {
		if scenario == "头痛" {
			return nil, &adapters.AdapterError{Transient: true, Reason: "always down"}
		}
		return [][]string{{"心电图"}}, nil
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(context.Background(), testSamples, combo)

	assert.Equal(t, 2, result.TotalSamples)
	assert.Equal(t, 1, result.FailedSamples)
	require.Len(t, result.Details, 2)
	// The failing sample is excluded but order of the rest is preserved.
	assert.Equal(t, "胸痛", result.Details[0].ClinicalScenario)
	assert.Equal(t, "腹痛", result.Details[1].ClinicalScenario)
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	adapter := &fakeAdapter{handler: func(_ int, _ string) ([][]string, error) {
		return nil, &adapters.AdapterError{Reason: "400 bad request"}
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(context.Background(), testSamples[:1], combo)

	assert.Zero(t, result.TotalSamples)
	assert.Equal(t, 1, result.FailedSamples)
	assert.Equal(t, 1, adapter.callCount())
}

func TestRunBudgetFailsUndispatchedSamples(t *testing.T) {
	adapter := &fakeAdapter{handler: func(_ int, _ string) ([][]string, error) {
		return [][]string{{"心电图"}}, nil
	}}
	opts := testOptions()
	opts.Budget = time.Nanosecond
	r := NewCombinationRunner(adapter, judge.NewExact(), opts, nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(context.Background(), testSamples, combo)

	assert.Zero(t, result.TotalSamples)
	assert.Equal(t, 3, result.FailedSamples)
	assert.Zero(t, adapter.callCount())
}

func TestRunStopsDispatchingAfterCancel(t *testing.T) {
	adapter := &fakeAdapter{handler: func(_ int, _ string) ([][]string, error) {
		return [][]string{{"心电图"}}, nil
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(ctx, testSamples, combo)

	assert.Zero(t, adapter.callCount())
	assert.Equal(t, 3, result.FailedSamples)
}

// cancellingAdapter cancels the run from inside its first call, then reports
// success only if its own call context survived the cancellation.
type cancellingAdapter struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingAdapter) Shape() adapters.Shape { return adapters.ShapeStructured }

func (c *cancellingAdapter) BuildRequest(models.Sample, models.CanonicalRequest) (adapters.NativeRequest, error) {
	return adapters.NativeRequest{URL: "fake"}, nil
}

func (c *cancellingAdapter) Call(ctx context.Context, _ adapters.NativeRequest) (adapters.NativeResponse, error) {
	c.once.Do(c.cancel)
	select {
	case <-ctx.Done():
		return adapters.NativeResponse{}, &adapters.AdapterError{Reason: "call cancelled", Err: ctx.Err()}
	case <-time.After(20 * time.Millisecond):
	}
	return adapters.NativeResponse{ElapsedMs: 5}, nil
}

func (c *cancellingAdapter) Parse(adapters.NativeResponse) (models.CanonicalResult, error) {
	return models.CanonicalResult{Recommendations: [][]string{{"心电图"}}, ProcessingTimeMs: 5}, nil
}

func TestRunLetsInFlightCallsCompleteOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewCombinationRunner(&cancellingAdapter{cancel: cancel}, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(ctx, testSamples[:1], combo)

	// The run was cancelled while the call was in flight, but the call was
	// already issued and must still count.
	assert.Equal(t, 1, result.TotalSamples)
	assert.Zero(t, result.FailedSamples)
	assert.Equal(t, 1, result.HitSamples)
}

func TestTruncateClampsToCombination(t *testing.T) {
	recs := [][]string{
		{"a", "b", "c"},
		{"d"},
		{"e", "f"},
	}
	combo := models.Combination{TopScenarios: 2, TopRecommendationsPerScenario: 2}
	assert.Equal(t, [][]string{{"a", "b"}, {"d"}}, truncate(recs, combo))

	// Limits larger than the response leave it untouched.
	combo = models.Combination{TopScenarios: 5, TopRecommendationsPerScenario: 9}
	assert.Equal(t, recs, truncate(recs, combo))
}

func TestRunSoleRecommendationRule(t *testing.T) {
	// With (1,1) the response is clamped to a single item, so a hit
	// requires the sole recommendation to equal the answer.
	adapter := &fakeAdapter{handler: func(_ int, _ string) ([][]string, error) {
		return [][]string{{"胸部X线", "心电图"}}, nil
	}}
	r := NewCombinationRunner(adapter, judge.NewExact(), testOptions(), nil)

	combo := models.Combination{TopScenarios: 1, TopRecommendationsPerScenario: 1}
	result := r.Run(context.Background(), testSamples[:1], combo)
	assert.Zero(t, result.HitSamples)

	combo.TopRecommendationsPerScenario = 3
	result = r.Run(context.Background(), testSamples[:1], combo)
	assert.Equal(t, 1, result.HitSamples)
}
