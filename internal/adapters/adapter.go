// Package adapters translates canonical evaluation requests into the native
// wire shapes of the recommendation services under test, and their responses
// back into canonical ranked lists.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
)

// Shape identifies a service's wire format.
type Shape string

const (
	ShapeStructured Shape = "structured"
	ShapeSimple     Shape = "simple"
	ShapeFlat       Shape = "flat"
	ShapeStream     Shape = "stream"
)

// NativeRequest is a ready-to-send service request.
type NativeRequest struct {
	URL     string
	Payload []byte
}

// NativeResponse is a raw service response plus transport-level timing.
// Items is populated only by the streaming shape, where the ranked list is
// assembled during the read rather than parsed from a single body.
type NativeResponse struct {
	Body      []byte
	Items     []StreamItem
	ElapsedMs int64
}

// StreamItem is one accumulated item from a streamed response.
type StreamItem struct {
	Name string
	Text string
}

// ServiceAdapter converts between the canonical request/result forms and one
// service's native protocol. BuildRequest and Parse are pure; Call performs
// the network round trip.
type ServiceAdapter interface {
	Shape() Shape
	BuildRequest(sample models.Sample, req models.CanonicalRequest) (NativeRequest, error)
	Call(ctx context.Context, req NativeRequest) (NativeResponse, error)
	Parse(resp NativeResponse) (models.CanonicalResult, error)
}

// AdapterError classifies a failed service interaction. Transient failures
// (connection refused, timeout, 5xx, 429) are retried by the runner;
// everything else fails the sample immediately.
type AdapterError struct {
	Transient  bool
	Reason     string
	StatusCode int
	Err        error
}

func (e *AdapterError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s adapter error: %s (status %d)", kind, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("%s adapter error: %s", kind, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsTransient reports whether err is an AdapterError marked retryable.
func IsTransient(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Transient
}

// New constructs the adapter for a configured service. Shape-specific request
// defaults are decoded from the service's free-form params map.
func New(svc config.Service, client *http.Client) (ServiceAdapter, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch Shape(svc.Shape) {
	case ShapeStructured:
		return newStructuredAdapter(svc, client, false)
	case ShapeSimple:
		return newStructuredAdapter(svc, client, true)
	case ShapeFlat:
		return newFlatAdapter(svc, client)
	case ShapeStream:
		return newStreamAdapter(svc, client)
	default:
		return nil, fmt.Errorf("unknown service shape %q for service %s", svc.Shape, svc.ID)
	}
}

func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decoding service params: %w", err)
	}
	return nil
}

// postJSON sends a request and returns the body. Network failures and
// retryable status codes come back as transient AdapterErrors.
func postJSON(ctx context.Context, client *http.Client, req NativeRequest) (NativeResponse, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return NativeResponse{}, &AdapterError{Reason: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return NativeResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return NativeResponse{}, &AdapterError{Transient: true, Reason: "reading response body", Err: err}
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return NativeResponse{}, err
	}
	return NativeResponse{Body: body, ElapsedMs: elapsed}, nil
}

func checkStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &AdapterError{Transient: true, Reason: trimBody(body), StatusCode: status}
	default:
		return &AdapterError{Reason: trimBody(body), StatusCode: status}
	}
}

func classifyTransportError(err error) *AdapterError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AdapterError{Transient: true, Reason: "call timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AdapterError{Reason: "call cancelled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AdapterError{Transient: true, Reason: "call timed out", Err: err}
	}
	// Connection refused, reset, DNS: all worth a retry.
	return &AdapterError{Transient: true, Reason: "transport failure", Err: err}
}

func trimBody(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		s = "service error"
	}
	return s
}

// compactGroups drops empty item strings while preserving group positions,
// keeping Parse tolerant of sparse responses.
func compactGroups(groups [][]string) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		items := make([]string, 0, len(g))
		for _, item := range g {
			if item != "" {
				items = append(items, item)
			}
		}
		out = append(out, items)
	}
	return out
}

func marshalPayload(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, &AdapterError{Reason: "encoding request payload", Err: err}
	}
	return payload, nil
}
