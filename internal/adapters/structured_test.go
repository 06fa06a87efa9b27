package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

func canonicalRequest(scenario string, s, r int) models.CanonicalRequest {
	return models.CanonicalRequest{
		Scenario: scenario,
		Strategy: models.DefaultStrategyFlags(),
		Combination: models.Combination{
			TopScenarios:                  s,
			TopRecommendationsPerScenario: r,
		},
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"Data": {
				"best_recommendations": [
					{"final_choices": ["心电图", "胸部X线"], "overall_reasoning": "急性胸痛首选"},
					{"final_choices": ["冠脉CTA"]}
				],
				"processing_time_ms": 812
			}
		}`))
	}))
	defer srv.Close()

	adapter, err := New(config.Service{ID: "svc-a", BaseURL: srv.URL, Shape: "structured"}, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, ShapeStructured, adapter.Shape())

	sample := models.Sample{ClinicalScenario: "胸痛", StandardAnswer: "心电图"}
	req, err := adapter.BuildRequest(sample, canonicalRequest("胸痛", 3, 2))
	require.NoError(t, err)

	resp, err := adapter.Call(context.Background(), req)
	require.NoError(t, err)

	result, err := adapter.Parse(resp)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/recommend", gotPath)
	retrieval := gotBody["retrieval_strategy"].(map[string]any)
	assert.EqualValues(t, 3, retrieval["top_scenarios"])
	assert.EqualValues(t, 2, retrieval["top_recommendations_per_scenario"])

	assert.Equal(t, [][]string{{"心电图", "胸部X线"}, {"冠脉CTA"}}, result.Recommendations)
	assert.EqualValues(t, 812, result.ProcessingTimeMs)
}

func TestSimpleVariantUsesOwnEndpoint(t *testing.T) {
	adapter, err := New(config.Service{ID: "svc-b", BaseURL: "http://svc", Shape: "simple"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ShapeSimple, adapter.Shape())

	req, err := adapter.BuildRequest(models.Sample{ClinicalScenario: "咳嗽"}, canonicalRequest("咳嗽", 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "http://svc/api/v1/recommend-simple", req.URL)
}

func TestStructuredParseToleratesMissingFields(t *testing.T) {
	adapter, err := New(config.Service{ID: "svc-a", BaseURL: "http://svc", Shape: "structured"}, nil)
	require.NoError(t, err)

	result, err := adapter.Parse(NativeResponse{Body: []byte(`{}`), ElapsedMs: 40})
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	assert.EqualValues(t, 40, result.ProcessingTimeMs)
}

func TestStructuredParseRejectsMalformedBody(t *testing.T) {
	adapter, err := New(config.Service{ID: "svc-a", BaseURL: "http://svc", Shape: "structured"}, nil)
	require.NoError(t, err)

	_, err = adapter.Parse(NativeResponse{Body: []byte(`not json`)})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestCallClassifiesStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		adapter, err := New(config.Service{ID: "svc", BaseURL: srv.URL, Shape: "structured"}, srv.Client())
		require.NoError(t, err)

		req, err := adapter.BuildRequest(models.Sample{ClinicalScenario: "x"}, canonicalRequest("x", 1, 1))
		require.NoError(t, err)

		_, err = adapter.Call(context.Background(), req)
		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.transient, IsTransient(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestCallConnectionRefusedIsTransient(t *testing.T) {
	// A closed server guarantees connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	adapter, err := New(config.Service{ID: "svc", BaseURL: url, Shape: "structured"}, nil)
	require.NoError(t, err)

	req, err := adapter.BuildRequest(models.Sample{ClinicalScenario: "x"}, canonicalRequest("x", 1, 1))
	require.NoError(t, err)

	_, err = adapter.Call(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestNewRejectsUnknownShape(t *testing.T) {
	_, err := New(config.Service{ID: "svc", BaseURL: "http://svc", Shape: "soap"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service shape")
}

func TestEndpointOverrideViaParams(t *testing.T) {
	adapter, err := New(config.Service{
		ID:      "svc",
		BaseURL: "http://svc/",
		Shape:   "structured",
		Params:  map[string]any{"endpoint": "/v2/recommend"},
	}, nil)
	require.NoError(t, err)

	req, err := adapter.BuildRequest(models.Sample{ClinicalScenario: "x"}, canonicalRequest("x", 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "http://svc/v2/recommend", req.URL)
}
