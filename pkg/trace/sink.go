// Package trace provides the engine's two tracing facilities: general
// observability spans emitted through a pluggable SpanSink, and the
// retrieval-oriented QueryTrace built per execution.
package trace

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mettice/nodeai/pkg/types"
)

// SpanDescriptor describes a span at open time.
type SpanDescriptor struct {
	Name         string
	Type         string
	ParentSpanID string
	ExecutionID  string
	Attributes   map[string]interface{}
}

// SpanSink receives observability spans. Implementations must be safe for
// concurrent emission from multiple executions; the engine tolerates a no-op
// implementation and guarantees that every started span is ended, even on
// panic-equivalent failures.
type SpanSink interface {
	// Start opens a span and returns its id.
	Start(desc SpanDescriptor) string

	// AddAttributes attaches attributes to an open span.
	AddAttributes(spanID string, attrs map[string]interface{})

	// End closes a span with a terminal status.
	End(spanID string, status types.SpanStatus)
}

// NoopSink discards spans while still minting ids, so the rest of the engine
// can reference span ids unconditionally.
type NoopSink struct{}

// Start implements SpanSink
func (NoopSink) Start(SpanDescriptor) string { return uuid.New().String() }

// AddAttributes implements SpanSink (does nothing)
func (NoopSink) AddAttributes(string, map[string]interface{}) {}

// End implements SpanSink (does nothing)
func (NoopSink) End(string, types.SpanStatus) {}

// MemorySink retains spans in memory for inspection. Intended for tests and
// development; production deployments use the OTel-backed sink in
// pkg/telemetry.
type MemorySink struct {
	mu    sync.Mutex
	open  map[string]*types.Span
	ended []types.Span
}

// NewMemorySink creates an empty in-memory span sink
func NewMemorySink() *MemorySink {
	return &MemorySink{open: make(map[string]*types.Span)}
}

// Start implements SpanSink
func (s *MemorySink) Start(desc SpanDescriptor) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := &types.Span{
		SpanID:       uuid.New().String(),
		ParentSpanID: desc.ParentSpanID,
		Name:         desc.Name,
		Type:         desc.Type,
		StartedAt:    types.Now(),
		Attributes:   make(map[string]interface{}, len(desc.Attributes)),
	}
	for k, v := range desc.Attributes {
		span.Attributes[k] = v
	}
	s.open[span.SpanID] = span
	return span.SpanID
}

// AddAttributes implements SpanSink
func (s *MemorySink) AddAttributes(spanID string, attrs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span, ok := s.open[spanID]
	if !ok {
		return
	}
	for k, v := range attrs {
		span.Attributes[k] = v
	}
}

// End implements SpanSink
func (s *MemorySink) End(spanID string, status types.SpanStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span, ok := s.open[spanID]
	if !ok {
		return
	}
	span.EndedAt = types.Now()
	span.Status = status
	s.ended = append(s.ended, *span)
	delete(s.open, spanID)
}

// Ended returns a copy of all closed spans in close order.
func (s *MemorySink) Ended() []types.Span {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Span, len(s.ended))
	copy(out, s.ended)
	return out
}

// OpenCount returns the number of spans started but not yet ended.
func (s *MemorySink) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
