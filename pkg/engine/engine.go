// Package engine provides the workflow execution orchestrator. It wires the
// validator, data collector, node executor, tracing, cost tracking, and the
// stream bus: validates and plans the workflow, dispatches nodes with bounded
// parallelism, streams lifecycle events, closes spans, writes cost records,
// and returns the terminal Execution record.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mettice/nodeai/pkg/collector"
	"github.com/mettice/nodeai/pkg/config"
	"github.com/mettice/nodeai/pkg/cost"
	"github.com/mettice/nodeai/pkg/executor"
	"github.com/mettice/nodeai/pkg/formatter"
	"github.com/mettice/nodeai/pkg/logging"
	"github.com/mettice/nodeai/pkg/registry"
	"github.com/mettice/nodeai/pkg/stream"
	"github.com/mettice/nodeai/pkg/telemetry"
	"github.com/mettice/nodeai/pkg/trace"
	"github.com/mettice/nodeai/pkg/types"
)

// Engine executes workflows. An Engine is immutable after construction and
// safe for any number of concurrent Run calls; all per-run state lives in a
// runContext value created per call.
type Engine struct {
	registry   *registry.Registry
	formatters *formatter.Registry
	collector  *collector.Collector
	executor   *executor.Executor
	bus        stream.Bus
	spans      trace.SpanSink
	costSink   cost.Sink
	secrets    registry.SecretsLookup
	telemetry  *telemetry.Provider
	cfg        config.Config
	logger     *logging.Logger
}

// Option configures an Engine
type Option func(*options)

type options struct {
	cfg        config.Config
	formatters *formatter.Registry
	mappings   map[types.NodeType][]collector.FieldRule
	bus        stream.Bus
	spans      trace.SpanSink
	costSink   cost.Sink
	secrets    registry.SecretsLookup
	telemetry  *telemetry.Provider
	logger     *logging.Logger
}

// WithConfig sets the engine configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithFormatters sets the output formatter registry.
func WithFormatters(formatters *formatter.Registry) Option {
	return func(o *options) { o.formatters = formatters }
}

// WithFieldMappings replaces the collector's default field-mapping table.
func WithFieldMappings(mappings map[types.NodeType][]collector.FieldRule) Option {
	return func(o *options) { o.mappings = mappings }
}

// WithBus sets the stream bus delivering lifecycle events.
func WithBus(bus stream.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithSpanSink sets the observability span sink.
func WithSpanSink(spans trace.SpanSink) Option {
	return func(o *options) { o.spans = spans }
}

// WithCostSink sets the durable cost ledger.
func WithCostSink(sink cost.Sink) Option {
	return func(o *options) { o.costSink = sink }
}

// WithSecrets sets the secrets lookup plumbed into node handlers.
func WithSecrets(secrets registry.SecretsLookup) Option {
	return func(o *options) { o.secrets = secrets }
}

// WithTelemetry attaches a telemetry provider for execution metrics.
func WithTelemetry(provider *telemetry.Provider) Option {
	return func(o *options) { o.telemetry = provider }
}

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an Engine over the given node registry. Every collaborator has
// a no-op default, so tests can construct an engine from a registry alone.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	o := &options{cfg: config.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	if o.formatters == nil {
		o.formatters = formatter.New()
	}
	if o.bus == nil {
		o.bus = stream.NewBus(o.cfg.StreamBufferSize)
	}
	if o.spans == nil {
		o.spans = trace.NoopSink{}
	}
	if o.costSink == nil {
		o.costSink = cost.NoopSink{}
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	collectorOpts := []collector.Option{
		collector.WithIntelligentRouting(o.cfg.IntelligentRouting),
	}
	if o.mappings != nil {
		collectorOpts = append(collectorOpts, collector.WithMappings(o.mappings))
	}

	limits := trace.DigestLimits{
		MaxStringLen: o.cfg.DigestMaxStringLen,
		HashOverLen:  o.cfg.DigestHashOverLen,
	}

	return &Engine{
		registry:   reg,
		formatters: o.formatters,
		collector:  collector.New(o.formatters, collectorOpts...),
		executor:   executor.New(reg, o.formatters, o.spans, limits, o.logger),
		bus:        o.bus,
		spans:      o.spans,
		costSink:   o.costSink,
		secrets:    o.secrets,
		telemetry:  o.telemetry,
		cfg:        o.cfg,
		logger:     o.logger,
	}, nil
}

// Bus returns the engine's stream bus, for subscribing before Run.
func (e *Engine) Bus() stream.Bus {
	return e.bus
}

// Run executes the workflow and returns the sealed Execution record. The
// record always carries a terminal status: completed, failed, or canceled.
// Validation failures produce a failed Execution without dispatching any
// node. Cancellation is observed cooperatively through ctx.
func (e *Engine) Run(ctx context.Context, wf *types.Workflow) *types.Execution {
	return e.run(ctx, e.newRun(wf))
}

// Start begins an execution asynchronously and returns a subscription
// delivering its lifecycle events from execution_started onward, plus a
// channel yielding the sealed Execution. The subscription is created before
// any event publishes, so callers observe the complete stream.
func (e *Engine) Start(ctx context.Context, wf *types.Workflow) (*stream.Subscription, <-chan *types.Execution) {
	rc := e.newRun(wf)
	sub := e.bus.Subscribe(rc.execution.ExecutionID)

	done := make(chan *types.Execution, 1)
	go func() {
		done <- e.run(ctx, rc)
	}()
	return sub, done
}

func (e *Engine) run(ctx context.Context, rc *runContext) *types.Execution {
	if e.cfg.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.MaxExecutionTime)
		defer cancel()
	}

	ctx = context.WithValue(ctx, types.ContextKeyExecutionID, rc.execution.ExecutionID)
	ctx = context.WithValue(ctx, types.ContextKeyWorkflowID, rc.wf.ID)

	rc.logger.Info("workflow execution started")
	rc.publish(types.Event{
		Type:        types.EventExecutionStarted,
		ExecutionID: rc.execution.ExecutionID,
		WorkflowID:  rc.wf.ID,
		Timestamp:   types.Now(),
		NodeCount:   len(rc.wf.Nodes),
	})

	if err := rc.validate(e); err != nil {
		return rc.finalizeValidationFailure(ctx, e, err)
	}

	rc.dispatch(ctx, e)
	return rc.finalize(ctx, e)
}

// newRun builds the per-execution state.
func (e *Engine) newRun(wf *types.Workflow) *runContext {
	executionID := uuid.New().String()

	rc := &runContext{
		wf:      wf,
		memo:    collector.NewMemo(),
		tracker: cost.NewTracker(),
		logger:  e.logger.WithWorkflowID(wf.ID).WithExecutionID(executionID),
		bus:     e.bus,
		execution: &types.Execution{
			ExecutionID: executionID,
			WorkflowID:  wf.ID,
			Status:      types.ExecutionStatusRunning,
			StartedAt:   types.Now(),
			Results:     make(map[string]*types.NodeResult, len(wf.Nodes)),
			TotalCost:   decimal.Zero,
		},
	}

	rc.rootSpanID = e.spans.Start(trace.SpanDescriptor{
		Name:        "workflow.execute",
		Type:        "execution",
		ExecutionID: executionID,
		Attributes: map[string]interface{}{
			"workflow.id":  wf.ID,
			"execution.id": executionID,
			"node.count":   len(wf.Nodes),
		},
	})
	return rc
}
