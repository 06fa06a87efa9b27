package models

import "encoding/json"

// StrategyFlags tune how a target service retrieves and ranks candidates.
// Defaults mirror the behavior the services apply when the fields are omitted.
type StrategyFlags struct {
	EnableReranking          bool    `json:"enable_reranking" yaml:"enable_reranking"`
	NeedLLMRecommendations   bool    `json:"need_llm_recommendations" yaml:"need_llm_recommendations"`
	ApplyRuleFilter          bool    `json:"apply_rule_filter" yaml:"apply_rule_filter"`
	SimilarityThreshold      float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	MinAppropriatenessRating int     `json:"min_appropriateness_rating" yaml:"min_appropriateness_rating"`
	ShowReasoning            bool    `json:"show_reasoning" yaml:"show_reasoning"`
}

// DefaultStrategyFlags returns the flags used when a run spec leaves them unset.
func DefaultStrategyFlags() StrategyFlags {
	return StrategyFlags{
		EnableReranking:          true,
		NeedLLMRecommendations:   true,
		ApplyRuleFilter:          true,
		SimilarityThreshold:      0.3,
		MinAppropriatenessRating: 7,
	}
}

// CanonicalRequest is the service-independent form of one evaluation call.
// Adapters translate it into each service's native wire shape.
type CanonicalRequest struct {
	Scenario        string         `json:"scenario"`
	PatientInfo     map[string]any `json:"patient_info,omitempty"`
	ClinicalContext map[string]any `json:"clinical_context,omitempty"`
	StandardQuery   string         `json:"standard_query,omitempty"`
	Strategy        StrategyFlags  `json:"strategy"`
	Combination     Combination    `json:"combination"`
}

// CanonicalResult is the service-independent form of one service response.
// Recommendations is grouped per scenario: Recommendations[i] holds the ranked
// examination items the service proposed for its i-th candidate scenario.
type CanonicalResult struct {
	Recommendations  [][]string      `json:"recommendations"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Raw              json.RawMessage `json:"-"`
}

// Verdict is a judge's decision for one sample.
type Verdict struct {
	Hit             bool  `json:"hit"`
	PerScenarioHits []int `json:"per_scenario_hits"`
	Top1Hit         bool  `json:"top1_hit"`
	Top3Hit         bool  `json:"top3_hit"`
	FellBack        bool  `json:"judge_fallback,omitempty"`
}

// EvaluationDetail records the outcome of one sample under one combination.
type EvaluationDetail struct {
	ClinicalScenario string     `json:"clinical_scenario"`
	StandardAnswer   string     `json:"standard_answer"`
	Recommendations  [][]string `json:"recommendations"`
	PerScenarioHits  []int      `json:"per_scenario_hits"`
	Hit              bool       `json:"hit"`
	Top1Hit          bool       `json:"top1_hit"`
	Top3Hit          bool       `json:"top3_hit"`
	JudgeFallback    bool       `json:"judge_fallback,omitempty"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
}

// CombinationResult aggregates all sample outcomes for one combination.
// TotalSamples counts only samples that produced a usable response; samples
// that failed after retries are tracked in FailedSamples and excluded from
// the accuracy denominator.
type CombinationResult struct {
	Combination         Combination         `json:"combination"`
	Accuracy            float64             `json:"accuracy"`
	TotalSamples        int                 `json:"total_samples"`
	HitSamples          int                 `json:"hit_samples"`
	FailedSamples       int                 `json:"failed_samples"`
	AvgProcessingTimeMs float64             `json:"avg_processing_time_ms"`
	HitRateCI           *ConfidenceInterval `json:"hit_rate_ci,omitempty"`
	Details             []EvaluationDetail  `json:"details"`
}

// ConfidenceInterval is a bootstrap interval over per-sample hit flags.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// ServiceResult aggregates one service's results across all combinations,
// keyed by combination label. A non-empty Error means the service produced
// no usable responses; counts are then zero.
type ServiceResult struct {
	ServiceID           string                       `json:"service_id"`
	OverallAccuracy     float64                      `json:"overall_accuracy"`
	CombinationResults  map[string]CombinationResult `json:"combination_results"`
	AvgProcessingTimeMs float64                      `json:"avg_processing_time_ms"`
	TotalSamples        int                          `json:"total_samples"`
	FailedSamples       int                          `json:"failed_samples"`
	Error               string                       `json:"error,omitempty"`
}

// Summary is the cross-service digest attached to a successful task.
type Summary struct {
	Tested          int     `json:"services_tested"`
	Succeeded       int     `json:"services_succeeded"`
	Failed          int     `json:"services_failed"`
	AvgAccuracy     float64 `json:"avg_accuracy"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	MedianLatencyMs float64 `json:"median_latency_ms"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	TotalSamples    int     `json:"total_samples"`
	FailedSamples   int     `json:"failed_samples"`
}

// AggregateResult is the full payload of a completed evaluation run.
type AggregateResult struct {
	PerService   map[string]ServiceResult `json:"per_service"`
	Summary      Summary                  `json:"summary"`
	ExportPath   string                   `json:"export_path,omitempty"`
	WorkbookPath string                   `json:"workbook_path,omitempty"`
}
