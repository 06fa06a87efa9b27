package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// flatAdapter speaks the intelligent-recommendation shape: a single query in,
// one flat list of procedure names out. The flat list is treated as one
// scenario group.
type flatAdapter struct {
	serviceID string
	baseURL   string
	endpoint  string
	client    *http.Client
}

type flatParams struct {
	Endpoint string `mapstructure:"endpoint"`
}

func newFlatAdapter(svc config.Service, client *http.Client) (*flatAdapter, error) {
	var p flatParams
	if err := decodeParams(svc.Params, &p); err != nil {
		return nil, err
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = "/intelligent-recommendation"
	}
	return &flatAdapter{
		serviceID: svc.ID,
		baseURL:   strings.TrimRight(svc.BaseURL, "/"),
		endpoint:  endpoint,
		client:    client,
	}, nil
}

func (a *flatAdapter) Shape() Shape { return ShapeFlat }

type flatRequest struct {
	ClinicalQuery                 string  `json:"clinical_query"`
	TopScenarios                  int     `json:"top_scenarios"`
	TopRecommendationsPerScenario int     `json:"top_recommendations_per_scenario"`
	SimilarityThreshold           float64 `json:"similarity_threshold"`
	EnableReranking               bool    `json:"enable_reranking"`
	ApplyRuleFilter               bool    `json:"apply_rule_filter"`
}

func (a *flatAdapter) BuildRequest(sample models.Sample, req models.CanonicalRequest) (NativeRequest, error) {
	payload, err := marshalPayload(flatRequest{
		ClinicalQuery:                 req.Scenario,
		TopScenarios:                  req.Combination.TopScenarios,
		TopRecommendationsPerScenario: req.Combination.TopRecommendationsPerScenario,
		SimilarityThreshold:           req.Strategy.SimilarityThreshold,
		EnableReranking:               req.Strategy.EnableReranking,
		ApplyRuleFilter:               req.Strategy.ApplyRuleFilter,
	})
	if err != nil {
		return NativeRequest{}, err
	}
	return NativeRequest{URL: a.baseURL + a.endpoint, Payload: payload}, nil
}

func (a *flatAdapter) Call(ctx context.Context, req NativeRequest) (NativeResponse, error) {
	return postJSON(ctx, a.client, req)
}

type flatResponse struct {
	Query              string `json:"query"`
	LLMRecommendations struct {
		Recommendations []struct {
			ProcedureName string `json:"procedure_name"`
		} `json:"recommendations"`
	} `json:"llm_recommendations"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

func (a *flatAdapter) Parse(resp NativeResponse) (models.CanonicalResult, error) {
	var body flatResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.CanonicalResult{}, &AdapterError{Reason: "malformed response body", Err: err}
	}
	items := make([]string, 0, len(body.LLMRecommendations.Recommendations))
	for _, rec := range body.LLMRecommendations.Recommendations {
		items = append(items, rec.ProcedureName)
	}
	processing := body.ProcessingTimeMs
	if processing == 0 {
		processing = resp.ElapsedMs
	}
	return models.CanonicalResult{
		Recommendations:  compactGroups([][]string{items}),
		ProcessingTimeMs: processing,
		Raw:              json.RawMessage(resp.Body),
	}, nil
}
