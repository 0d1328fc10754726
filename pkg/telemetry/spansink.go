package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	enginetrace "github.com/mettice/nodeai/pkg/trace"
	"github.com/mettice/nodeai/pkg/types"
)

// SpanSink adapts the engine's SpanSink seam onto an OpenTelemetry tracer.
// Each engine span becomes an otel span; node spans become children of their
// execution's root span through explicit parent lookup.
type SpanSink struct {
	tracer oteltrace.Tracer

	mu   sync.Mutex
	open map[string]oteltrace.Span
}

// NewSpanSink creates a SpanSink emitting through the provider's tracer.
func NewSpanSink(provider *Provider) *SpanSink {
	return &SpanSink{
		tracer: provider.Tracer(),
		open:   make(map[string]oteltrace.Span),
	}
}

// Start implements trace.SpanSink
func (s *SpanSink) Start(desc enginetrace.SpanDescriptor) string {
	if s.tracer == nil {
		return uuid.New().String()
	}

	ctx := context.Background()
	s.mu.Lock()
	if parent, ok := s.open[desc.ParentSpanID]; ok {
		ctx = oteltrace.ContextWithSpan(ctx, parent)
	}
	s.mu.Unlock()

	_, span := s.tracer.Start(ctx, desc.Name,
		oteltrace.WithAttributes(
			attribute.String("span.type", desc.Type),
			attribute.String("execution.id", desc.ExecutionID),
		),
	)
	span.SetAttributes(toAttributes(desc.Attributes)...)

	id := uuid.New().String()
	s.mu.Lock()
	s.open[id] = span
	s.mu.Unlock()
	return id
}

// AddAttributes implements trace.SpanSink
func (s *SpanSink) AddAttributes(spanID string, attrs map[string]interface{}) {
	s.mu.Lock()
	span, ok := s.open[spanID]
	s.mu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(toAttributes(attrs)...)
}

// End implements trace.SpanSink
func (s *SpanSink) End(spanID string, status types.SpanStatus) {
	s.mu.Lock()
	span, ok := s.open[spanID]
	delete(s.open, spanID)
	s.mu.Unlock()
	if !ok {
		return
	}

	if status == types.SpanStatusError {
		span.SetStatus(codes.Error, "span ended with error")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// toAttributes converts engine attributes into otel key-values.
func toAttributes(attrs map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch t := v.(type) {
		case string:
			out = append(out, attribute.String(k, t))
		case bool:
			out = append(out, attribute.Bool(k, t))
		case int:
			out = append(out, attribute.Int(k, t))
		case int64:
			out = append(out, attribute.Int64(k, t))
		case float64:
			out = append(out, attribute.Float64(k, t))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", t)))
		}
	}
	return out
}
