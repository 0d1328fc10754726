// Package telemetry wires the engine's observability seams onto
// OpenTelemetry: a tracer-backed SpanSink for execution and node spans, and
// metric instruments exported through Prometheus.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mettice/nodeai/pkg/types"
)

const (
	// Service name for telemetry
	serviceName = "nodeai-workflow-engine"

	// Metric names
	metricExecutions        = "workflow.executions.total"
	metricExecutionDuration = "workflow.execution.duration"
	metricExecutionFailures = "workflow.executions.failure.total"
	metricNodeExecutions    = "node.executions.total"
	metricNodeDuration      = "node.execution.duration"
	metricNodeFailures      = "node.executions.failure.total"
	metricCostTotal         = "workflow.cost.total"
	metricTokensTotal       = "workflow.tokens.total"
)

// Provider manages OpenTelemetry setup and provides access to the tracer and
// metric instruments.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer
	registry       *prometheus.Registry

	executions        metric.Int64Counter
	executionDuration metric.Float64Histogram
	executionFailures metric.Int64Counter
	nodeExecutions    metric.Int64Counter
	nodeDuration      metric.Float64Histogram
	nodeFailures      metric.Int64Counter
	costTotal         metric.Float64Counter
	tokensTotal       metric.Int64Counter

	mu sync.RWMutex
}

// Config holds telemetry configuration
type Config struct {
	// ServiceName is the name of the service for telemetry
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment (e.g., "production", "staging", "development")
	Environment string

	// EnableTracing enables distributed tracing
	EnableTracing bool

	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		EnableTracing:  true,
		EnableMetrics:  true,
	}
}

// NewProvider creates a telemetry provider with a Prometheus metrics
// exporter.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.EnableMetrics {
		if err := provider.initMetrics(res); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}
	if config.EnableTracing {
		provider.initTracing()
	}
	return provider, nil
}

// initMetrics initializes the meter provider with a Prometheus exporter
func (p *Provider) initMetrics(res *resource.Resource) error {
	p.registry = prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(serviceName)

	return p.createMetricInstruments()
}

// initTracing initializes the tracing provider. In production the global
// provider should be configured with an exporter (OTLP, Jaeger, etc.).
func (p *Provider) initTracing() {
	p.tracerProvider = otel.GetTracerProvider()
	p.tracer = p.tracerProvider.Tracer(serviceName)
}

// createMetricInstruments creates all metric instruments
func (p *Provider) createMetricInstruments() error {
	var err error

	p.executions, err = p.meter.Int64Counter(
		metricExecutions,
		metric.WithDescription("Total number of workflow executions"),
	)
	if err != nil {
		return err
	}

	p.executionDuration, err = p.meter.Float64Histogram(
		metricExecutionDuration,
		metric.WithDescription("Workflow execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.executionFailures, err = p.meter.Int64Counter(
		metricExecutionFailures,
		metric.WithDescription("Total number of failed workflow executions"),
	)
	if err != nil {
		return err
	}

	p.nodeExecutions, err = p.meter.Int64Counter(
		metricNodeExecutions,
		metric.WithDescription("Total number of node executions"),
	)
	if err != nil {
		return err
	}

	p.nodeDuration, err = p.meter.Float64Histogram(
		metricNodeDuration,
		metric.WithDescription("Node execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.nodeFailures, err = p.meter.Int64Counter(
		metricNodeFailures,
		metric.WithDescription("Total number of failed node executions"),
	)
	if err != nil {
		return err
	}

	p.costTotal, err = p.meter.Float64Counter(
		metricCostTotal,
		metric.WithDescription("Accumulated execution cost"),
	)
	if err != nil {
		return err
	}

	p.tokensTotal, err = p.meter.Int64Counter(
		metricTokensTotal,
		metric.WithDescription("Accumulated token usage"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Tracer returns the tracer for creating spans
func (p *Provider) Tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracer
}

// Handler returns the Prometheus scrape handler for the provider's registry.
// Returns nil when metrics are disabled.
func (p *Provider) Handler() http.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RecordExecution records metrics for a finished workflow execution
func (p *Provider) RecordExecution(ctx context.Context, workflowID string, status types.ExecutionStatus, duration time.Duration, costValue float64, tokens int64) {
	if p.meter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("workflow.id", workflowID),
		attribute.String("status", string(status)),
	}

	p.executions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.executionDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if status == types.ExecutionStatusFailed {
		p.executionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if costValue > 0 {
		p.costTotal.Add(ctx, costValue, metric.WithAttributes(attrs...))
	}
	if tokens > 0 {
		p.tokensTotal.Add(ctx, tokens, metric.WithAttributes(attrs...))
	}
}

// RecordNodeExecution records metrics for a single node execution
func (p *Provider) RecordNodeExecution(ctx context.Context, nodeID string, nodeType types.NodeType, duration time.Duration, status types.NodeStatus) {
	if p.meter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("node.id", nodeID),
		attribute.String("node.type", string(nodeType)),
	}

	p.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.nodeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if status == types.NodeStatusFailed {
		p.nodeFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Shutdown gracefully shuts down the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}
