package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// structuredAdapter speaks the richest wire shape: per-scenario groups with
// final_choices and reasoning. The simple variant shares the shape on a
// different endpoint path.
type structuredAdapter struct {
	serviceID string
	baseURL   string
	endpoint  string
	client    *http.Client
	simple    bool
}

type structuredParams struct {
	Endpoint string `mapstructure:"endpoint"`
}

func newStructuredAdapter(svc config.Service, client *http.Client, simple bool) (*structuredAdapter, error) {
	endpoint := "/api/v1/recommend"
	if simple {
		endpoint = "/api/v1/recommend-simple"
	}
	var p structuredParams
	if err := decodeParams(svc.Params, &p); err != nil {
		return nil, err
	}
	if p.Endpoint != "" {
		endpoint = p.Endpoint
	}
	return &structuredAdapter{
		serviceID: svc.ID,
		baseURL:   strings.TrimRight(svc.BaseURL, "/"),
		endpoint:  endpoint,
		client:    client,
		simple:    simple,
	}, nil
}

func (a *structuredAdapter) Shape() Shape {
	if a.simple {
		return ShapeSimple
	}
	return ShapeStructured
}

type structuredRequest struct {
	PatientInfo       map[string]any    `json:"patient_info"`
	ClinicalContext   map[string]any    `json:"clinical_context"`
	SearchStrategy    searchStrategy    `json:"search_strategy"`
	RetrievalStrategy retrievalStrategy `json:"retrieval_strategy"`
	StandardQuery     string            `json:"standard_query,omitempty"`
}

type searchStrategy struct {
	EnableReranking        bool    `json:"enable_reranking"`
	NeedLLMRecommendations bool    `json:"need_llm_recommendations"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`
	ShowReasoning          bool    `json:"show_reasoning"`
}

type retrievalStrategy struct {
	TopScenarios                  int  `json:"top_scenarios"`
	TopRecommendationsPerScenario int  `json:"top_recommendations_per_scenario"`
	ApplyRuleFilter               bool `json:"apply_rule_filter"`
	MinAppropriatenessRating      int  `json:"min_appropriateness_rating"`
}

func (a *structuredAdapter) BuildRequest(sample models.Sample, req models.CanonicalRequest) (NativeRequest, error) {
	patientInfo := req.PatientInfo
	if patientInfo == nil {
		patientInfo = map[string]any{"clinical_scenario": sample.ClinicalScenario}
	}
	clinicalContext := req.ClinicalContext
	if clinicalContext == nil {
		clinicalContext = map[string]any{"chief_complaint": sample.ClinicalScenario}
	}
	payload, err := marshalPayload(structuredRequest{
		PatientInfo:     patientInfo,
		ClinicalContext: clinicalContext,
		SearchStrategy: searchStrategy{
			EnableReranking:        req.Strategy.EnableReranking,
			NeedLLMRecommendations: req.Strategy.NeedLLMRecommendations,
			SimilarityThreshold:    req.Strategy.SimilarityThreshold,
			ShowReasoning:          req.Strategy.ShowReasoning,
		},
		RetrievalStrategy: retrievalStrategy{
			TopScenarios:                  req.Combination.TopScenarios,
			TopRecommendationsPerScenario: req.Combination.TopRecommendationsPerScenario,
			ApplyRuleFilter:               req.Strategy.ApplyRuleFilter,
			MinAppropriatenessRating:      req.Strategy.MinAppropriatenessRating,
		},
		StandardQuery: req.StandardQuery,
	})
	if err != nil {
		return NativeRequest{}, err
	}
	return NativeRequest{URL: a.baseURL + a.endpoint, Payload: payload}, nil
}

func (a *structuredAdapter) Call(ctx context.Context, req NativeRequest) (NativeResponse, error) {
	return postJSON(ctx, a.client, req)
}

type structuredResponse struct {
	Data struct {
		BestRecommendations []struct {
			FinalChoices     []string `json:"final_choices"`
			OverallReasoning string   `json:"overall_reasoning"`
		} `json:"best_recommendations"`
		ProcessingTimeMs int64 `json:"processing_time_ms"`
	} `json:"Data"`
}

func (a *structuredAdapter) Parse(resp NativeResponse) (models.CanonicalResult, error) {
	var body structuredResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.CanonicalResult{}, &AdapterError{Reason: "malformed response body", Err: err}
	}
	groups := make([][]string, 0, len(body.Data.BestRecommendations))
	for _, rec := range body.Data.BestRecommendations {
		groups = append(groups, rec.FinalChoices)
	}
	processing := body.Data.ProcessingTimeMs
	if processing == 0 {
		processing = resp.ElapsedMs
	}
	return models.CanonicalResult{
		Recommendations:  compactGroups(groups),
		ProcessingTimeMs: processing,
		Raw:              json.RawMessage(resp.Body),
	}, nil
}
