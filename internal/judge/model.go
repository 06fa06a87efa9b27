package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/clinbench/recoeval/internal/cache"
	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

const judgeSystemPrompt = `You are a clinical examination recommendation judge.
Given a gold-standard examination item and a ranked list of recommended items,
decide whether the gold answer is clinically equivalent to the top-1 item and
whether it is clinically equivalent to any of the top-3 items. Synonyms,
abbreviations, and translations of the same examination count as equivalent.
Respond with a single JSON object: {"top_1": "0" or "1", "top_3": "0" or "1"}.
No other text.`

// verdictClient is the minimal chat-completion surface the model judge needs.
type verdictClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// openaiClient adapts the OpenAI-compatible chat API to verdictClient.
type openaiClient struct {
	client openai.Client
	model  string
}

func (c *openaiClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", models.ErrJudgeUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Model is the model-assisted judge. Top-1/Top-3 verdicts come from the
// model; the overall hit and per-scenario flags still come from exact
// matching, which also serves as the fallback when the model call fails.
// Verdicts may be cached on disk so identical inputs skip the model call.
type Model struct {
	client    verdictClient
	exact     *Exact
	cache     *cache.Cache
	modelName string
}

// NewModel builds a model judge from run spec settings.
func NewModel(cfg config.Judge) (*Model, error) {
	if cfg.Model == "" {
		return nil, &models.ValidationError{Field: "judge.model", Reason: "required when judge.mode is model"}
	}
	opts := []openaiopt.RequestOption{}
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, &models.ValidationError{Field: "judge.api_key_env", Reason: fmt.Sprintf("environment variable %s is empty", cfg.APIKeyEnv)}
		}
		opts = append(opts, openaiopt.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	return &Model{
		client:    &openaiClient{client: openai.NewClient(opts...), model: cfg.Model},
		exact:     NewExact(),
		cache:     cache.New(cfg.CacheDir),
		modelName: cfg.Model,
	}, nil
}

func (m *Model) Judge(ctx context.Context, recommendations [][]string, standardAnswer string) (models.Verdict, error) {
	verdict, _ := m.exact.Judge(ctx, recommendations, standardAnswer)

	first := flatten(recommendations)
	if standardAnswer == "" || len(first) == 0 {
		return verdict, nil
	}

	key := cache.Key(m.modelName, standardAnswer, first)
	if cached, ok := m.cache.Get(key); ok {
		// Only the model's Top-1/Top-3 calls are cached; Hit and the
		// per-scenario flags were just recomputed from the actual grouping.
		verdict.Top1Hit = cached.Top1Hit
		verdict.Top3Hit = cached.Top3Hit
		return verdict, nil
	}

	raw, err := m.client.Complete(ctx, judgeSystemPrompt, judgeUserPrompt(first, standardAnswer))
	if err != nil {
		verdict.FellBack = true
		return verdict, nil
	}
	top1, top3, err := parseModelVerdict(raw)
	if err != nil {
		verdict.FellBack = true
		return verdict, nil
	}

	verdict.Top1Hit = top1
	verdict.Top3Hit = top3
	// Fallback verdicts are never cached; only real model output is.
	_ = m.cache.Put(key, cache.Verdict{Top1Hit: top1, Top3Hit: top3})
	return verdict, nil
}

func judgeUserPrompt(items []string, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Gold-standard examination: %s\n\nRecommended items, ranked:\n", answer)
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

func parseModelVerdict(raw string) (top1, top3 bool, err error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var payload struct {
		Top1 string `json:"top_1"`
		Top3 string `json:"top_3"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &payload); err != nil {
		return false, false, fmt.Errorf("%w: unparseable verdict: %v", models.ErrJudgeUnavailable, err)
	}
	return payload.Top1 == "1", payload.Top3 == "1", nil
}
