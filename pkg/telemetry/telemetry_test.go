package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	enginetrace "github.com/mettice/nodeai/pkg/trace"
	"github.com/mettice/nodeai/pkg/types"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func TestProviderRecordsMetrics(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	provider.RecordExecution(ctx, "wf-1", types.ExecutionStatusCompleted, 1500*time.Millisecond, 0.05, 300)
	provider.RecordExecution(ctx, "wf-1", types.ExecutionStatusFailed, 200*time.Millisecond, 0, 0)
	provider.RecordNodeExecution(ctx, "n1", types.NodeTypeGenerate, 800*time.Millisecond, types.NodeStatusCompleted)
	provider.RecordNodeExecution(ctx, "n2", types.NodeTypeRetrieve, 100*time.Millisecond, types.NodeStatusFailed)

	handler := provider.Handler()
	if handler == nil {
		t.Fatal("expected a scrape handler with metrics enabled")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("failed to read scrape: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected scrape output")
	}
	scrape := string(body)
	for _, needle := range []string{"workflow_executions_total", "node_executions_total"} {
		if !strings.Contains(scrape, needle) {
			t.Errorf("scrape missing %s", needle)
		}
	}
}

func TestProviderMetricsDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		ServiceName:   "test",
		EnableTracing: true,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if provider.Handler() != nil {
		t.Error("expected no scrape handler with metrics disabled")
	}

	// Recording must be a no-op, not a panic.
	provider.RecordExecution(context.Background(), "wf-1", types.ExecutionStatusCompleted, time.Second, 0, 0)
	provider.RecordNodeExecution(context.Background(), "n1", types.NodeTypeEmbed, time.Second, types.NodeStatusCompleted)
}

func TestSpanSinkLifecycle(t *testing.T) {
	provider := newTestProvider(t)
	sink := NewSpanSink(provider)

	rootID := sink.Start(enginetrace.SpanDescriptor{
		Name:        "workflow.execute",
		Type:        "execution",
		ExecutionID: "x1",
	})
	if rootID == "" {
		t.Fatal("expected a span id")
	}

	childID := sink.Start(enginetrace.SpanDescriptor{
		Name:         "generate",
		Type:         "llm",
		ParentSpanID: rootID,
		ExecutionID:  "x1",
		Attributes:   map[string]interface{}{"node.id": "D"},
	})
	sink.AddAttributes(childID, map[string]interface{}{
		"cost":         "0.01",
		"tokens.total": int64(150),
		"duration_ms":  int64(800),
	})

	sink.End(childID, types.SpanStatusOK)
	sink.End(rootID, types.SpanStatusError)

	if len(sink.open) != 0 {
		t.Errorf("expected all spans closed, %d still open", len(sink.open))
	}

	// Ending an unknown span is a no-op.
	sink.End("missing", types.SpanStatusOK)
	sink.AddAttributes("missing", map[string]interface{}{"x": 1})
}
