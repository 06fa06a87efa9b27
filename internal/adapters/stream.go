package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// streamAdapter speaks a server-sent event shape: the service pushes item
// fragments and the ranked list is assembled client-side as they arrive.
type streamAdapter struct {
	serviceID string
	baseURL   string
	endpoint  string
	client    *http.Client
}

type streamParams struct {
	Endpoint string `mapstructure:"endpoint"`
}

func newStreamAdapter(svc config.Service, client *http.Client) (*streamAdapter, error) {
	var p streamParams
	if err := decodeParams(svc.Params, &p); err != nil {
		return nil, err
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = "/api/v1/recommend-stream"
	}
	return &streamAdapter{
		serviceID: svc.ID,
		baseURL:   strings.TrimRight(svc.BaseURL, "/"),
		endpoint:  endpoint,
		client:    client,
	}, nil
}

func (a *streamAdapter) Shape() Shape { return ShapeStream }

type streamRequest struct {
	Query                         string `json:"query"`
	TopScenarios                  int    `json:"top_scenarios"`
	TopRecommendationsPerScenario int    `json:"top_recommendations_per_scenario"`
	Stream                        bool   `json:"stream"`
}

func (a *streamAdapter) BuildRequest(sample models.Sample, req models.CanonicalRequest) (NativeRequest, error) {
	payload, err := marshalPayload(streamRequest{
		Query:                         req.Scenario,
		TopScenarios:                  req.Combination.TopScenarios,
		TopRecommendationsPerScenario: req.Combination.TopRecommendationsPerScenario,
		Stream:                        true,
	})
	if err != nil {
		return NativeRequest{}, err
	}
	return NativeRequest{URL: a.baseURL + a.endpoint, Payload: payload}, nil
}

// streamEvent is one SSE data fragment.
type streamEvent struct {
	Item  string `json:"item"`
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// streamAccumulator assembles item fragments in first-arrival order. It is a
// plain state machine so partial-stream behavior can be tested without a
// server.
type streamAccumulator struct {
	order    []string
	text     map[string]*strings.Builder
	terminal bool
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{text: make(map[string]*strings.Builder)}
}

// feed consumes one SSE data payload. It reports an error only for
// unparseable fragments; unknown fields are ignored.
func (acc *streamAccumulator) feed(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
		acc.terminal = true
		return nil
	}
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return &AdapterError{Reason: "malformed stream event", Err: err}
	}
	if ev.Done {
		acc.terminal = true
	}
	if ev.Item == "" {
		return nil
	}
	b, ok := acc.text[ev.Item]
	if !ok {
		b = &strings.Builder{}
		acc.text[ev.Item] = b
		acc.order = append(acc.order, ev.Item)
	}
	b.WriteString(ev.Delta)
	return nil
}

// done reports whether a terminal marker has been seen.
func (acc *streamAccumulator) done() bool { return acc.terminal }

// items returns the accumulated items in first-arrival order.
func (acc *streamAccumulator) items() []StreamItem {
	out := make([]StreamItem, 0, len(acc.order))
	for _, name := range acc.order {
		out = append(out, StreamItem{Name: name, Text: acc.text[name].String()})
	}
	return out
}

func (a *streamAdapter) Call(ctx context.Context, req NativeRequest) (NativeResponse, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return NativeResponse{}, &AdapterError{Reason: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return NativeResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := bufio.NewReader(resp.Body).Peek(200)
		return NativeResponse{}, checkStatus(resp.StatusCode, body)
	}

	acc := newStreamAccumulator()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		if err := acc.feed([]byte(strings.TrimSpace(data))); err != nil {
			return NativeResponse{}, err
		}
		if acc.done() {
			break
		}
	}
	if !acc.done() {
		// The stream ended (or the read deadline hit) without a terminal
		// marker; the list may be truncated, so the sample cannot be scored.
		return NativeResponse{}, &AdapterError{Reason: "incomplete stream", Err: scanner.Err()}
	}

	return NativeResponse{Items: acc.items(), ElapsedMs: time.Since(start).Milliseconds()}, nil
}

func (a *streamAdapter) Parse(resp NativeResponse) (models.CanonicalResult, error) {
	items := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, it.Name)
	}
	return models.CanonicalResult{
		Recommendations:  compactGroups([][]string{items}),
		ProcessingTimeMs: resp.ElapsedMs,
	}, nil
}
