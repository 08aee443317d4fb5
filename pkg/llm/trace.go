package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TraceExporter forwards call traces to an external observability
// collaborator, best-effort (spec §4.3 "Side effects": "Optionally
// forwards traces to an external observability collaborator; failures
// here never affect the primary call").
type TraceExporter interface {
	Export(ctx context.Context, trace CallTrace)
}

// CallTrace is one Complete call's summary, independent of success/failure.
type CallTrace struct {
	TraceID      string    `json:"trace_id"`
	TierLabel    string    `json:"tier_label"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	LatencyMS    int64     `json:"latency_ms"`
	Err          string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NoopTraceExporter discards every trace; the default when no exporter
// endpoint is configured.
type NoopTraceExporter struct{}

func (NoopTraceExporter) Export(context.Context, CallTrace) {}

// newTraceID mints a fresh id for one Complete call's exported trace. The
// id appears only in the trace; the facade does not write it to any log
// line.
func newTraceID() string {
	return uuid.NewString()
}

// HTTPTraceExporter posts traces as JSON to a Langfuse-style ingestion
// endpoint. Every failure is logged and swallowed — it must never affect
// the call that produced the trace.
type HTTPTraceExporter struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewHTTPTraceExporter(endpoint, apiKey string, logger *slog.Logger) *HTTPTraceExporter {
	return &HTTPTraceExporter{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Logger:   logger,
	}
}

func (e *HTTPTraceExporter) Export(ctx context.Context, trace CallTrace) {
	body, err := json.Marshal(trace)
	if err != nil {
		e.Logger.Warn("trace export: marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		e.Logger.Warn("trace export: build request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		e.Logger.Warn("trace export: request failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		e.Logger.Warn("trace export: non-2xx response", "status", resp.StatusCode)
	}
}
