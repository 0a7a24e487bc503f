// Package observability tracks per-run timing and model usage. It
// complements the Prometheus metrics with a per-session summary that
// is returned inline with research results.
package observability

import (
	"context"
	"sync"
	"time"
)

// StageTiming records one stage's wall clock duration.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// CallRecord logs a single model call.
type CallRecord struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Summary is the per-run metrics snapshot.
type Summary struct {
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Stages   []StageTiming `json:"stages"`
	Calls    []CallRecord  `json:"calls"`
}

// Collector accumulates timings and calls for one pipeline run.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	status  string
	stages  []StageTiming
	calls   []CallRecord
}

// NewCollector starts a run clock.
func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

type collectorKey struct{}

// WithCollector attaches the run's collector to the context so model
// clients deep in the call chain can record their calls.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the collector attached to ctx, or nil.
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// ObserveStage times fn under the given stage name.
func (c *Collector) ObserveStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.mu.Lock()
	c.stages = append(c.stages, StageTiming{Stage: stage, Duration: time.Since(start)})
	c.mu.Unlock()
	return err
}

// RecordCall logs a model call.
func (c *Collector) RecordCall(model string, inputTokens, outputTokens int) {
	c.mu.Lock()
	c.calls = append(c.calls, CallRecord{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
	c.mu.Unlock()
}

// End marks the run finished with a status.
func (c *Collector) End(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// Summary returns a copy of everything collected so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	stages := make([]StageTiming, len(c.stages))
	copy(stages, c.stages)
	calls := make([]CallRecord, len(c.calls))
	copy(calls, c.calls)
	return Summary{
		Status:   c.status,
		Duration: time.Since(c.started),
		Stages:   stages,
		Calls:    calls,
	}
}
