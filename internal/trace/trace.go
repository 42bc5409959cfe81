// Package trace is a minimal buffered span recorder. Spans accumulate in
// memory and are shipped in one batch on Flush; with no endpoint configured
// the buffer is simply dropped. Delivery is best-effort — losing spans never
// fails a request.
package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span is one recorded unit of pipeline work.
type Span struct {
	TraceID    string            `json:"trace_id"`
	Name       string            `json:"name"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

type batch struct {
	Project string `json:"project"`
	Spans   []Span `json:"spans"`
}

// Tracer buffers spans for a project and posts them to a collector.
type Tracer struct {
	project    string
	endpoint   string
	httpClient *http.Client

	mu  sync.Mutex
	buf []Span
}

// New creates a Tracer. An empty endpoint disables shipping; spans are
// still buffered so tests can inspect them, and Flush discards them.
func New(project, endpoint string) *Tracer {
	return &Tracer{
		project:  project,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// NewTraceID returns a fresh trace id to correlate a pipeline run's spans.
func (t *Tracer) NewTraceID() string {
	return uuid.NewString()
}

// Record buffers one span.
func (t *Tracer) Record(s Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, s)
}

// Buffered returns a copy of the currently buffered spans.
func (t *Tracer) Buffered() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Span, len(t.buf))
	copy(out, t.buf)
	return out
}

// Flush ships all buffered spans and clears the buffer. The buffer is
// cleared even when shipping fails: spans are best-effort, not durable.
func (t *Tracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	spans := t.buf
	t.buf = nil
	t.mu.Unlock()

	if t.endpoint == "" || len(spans) == 0 {
		return nil
	}

	body, err := json.Marshal(batch{Project: t.project, Spans: spans})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating flush request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("flushing spans: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trace collector returned status %d", resp.StatusCode)
	}
	return nil
}
