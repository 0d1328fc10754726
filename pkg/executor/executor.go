// Package executor invokes a node handler with assembled inputs and captures
// the outcome: output mapping, cost and token metadata, timing, and errors.
// Every execution is bracketed by an observability span that is guaranteed to
// close, including on handler panics.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mettice/nodeai/pkg/formatter"
	"github.com/mettice/nodeai/pkg/logging"
	"github.com/mettice/nodeai/pkg/registry"
	"github.com/mettice/nodeai/pkg/trace"
	"github.com/mettice/nodeai/pkg/types"
)

// configKeyTimeoutMS is the optional per-node wall-clock guard. The engine
// imposes no default: timeouts are handler-managed unless configured.
const configKeyTimeoutMS = "timeout_ms"

// Executor runs node handlers. It is immutable after construction and safe
// for concurrent use across executions.
type Executor struct {
	registry   *registry.Registry
	formatters *formatter.Registry
	spans      trace.SpanSink
	limits     trace.DigestLimits
	logger     *logging.Logger
}

// New creates an Executor
func New(reg *registry.Registry, formatters *formatter.Registry, spans trace.SpanSink, limits trace.DigestLimits, logger *logging.Logger) *Executor {
	if spans == nil {
		spans = trace.NoopSink{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		registry:   reg,
		formatters: formatters,
		spans:      spans,
		limits:     limits,
		logger:     logger,
	}
}

// Request carries everything needed to execute one node.
type Request struct {
	ExecutionID  string
	WorkflowID   string
	Node         *types.Node
	Inputs       map[string]interface{}
	ParentSpanID string
	Progress     registry.ProgressSink
	Secrets      registry.SecretsLookup

	// OnStart fires after the span opens and before the handler is
	// invoked, so callers can publish node_started ahead of any progress
	// event. Optional.
	OnStart func(spanID string)
}

// Execute runs the node handler and returns its terminal NodeResult. The
// result is always terminal (completed or failed); cancellation and timeouts
// surface as failed results with the matching error kind.
func (e *Executor) Execute(ctx context.Context, req Request) *types.NodeResult {
	node := req.Node
	handler := e.registry.Get(node.Type)

	logger := e.logger.
		WithExecutionID(req.ExecutionID).
		WithNodeID(node.ID).
		WithNodeType(node.Type)

	spanID := e.spans.Start(trace.SpanDescriptor{
		Name:         string(node.Type),
		Type:         spanType(handler),
		ParentSpanID: req.ParentSpanID,
		ExecutionID:  req.ExecutionID,
		Attributes: map[string]interface{}{
			"node.id":       node.ID,
			"node.type":     string(node.Type),
			"config.digest": trace.Digest(node.Config, e.limits),
		},
	})

	result := &types.NodeResult{
		NodeID:    node.ID,
		Status:    types.NodeStatusRunning,
		StartedAt: types.Now(),
		SpanID:    spanID,
	}

	if req.OnStart != nil {
		req.OnStart(spanID)
	}

	if handler == nil {
		// The validator rejects unknown types before dispatch; reaching
		// here means the registry changed mid-run.
		e.fail(result, types.NewNodeError(types.ErrKindInternal, uuid.New().String(),
			fmt.Errorf("no handler registered for type %s", node.Type)))
		logger.WithError(result.Error).Error("node dispatch failed")
		e.closeSpan(spanID, result)
		return result
	}

	if err := registry.CheckInputs(handler, req.Inputs); err != nil {
		// Schemas are advisory; a mismatch is surfaced but never blocks.
		logger.WithError(err).Warn("node inputs do not match declared schema")
	}

	nodeCtx := context.WithValue(ctx, types.ContextKeyNodeID, node.ID)
	cancel := func() {}
	if timeout, ok := nodeTimeout(node.Config); ok {
		nodeCtx, cancel = context.WithTimeout(nodeCtx, timeout)
	}
	defer cancel()

	logger.Debug("node execution started")

	output, err := e.invoke(nodeCtx, handler, req)
	if err != nil {
		e.fail(result, e.classify(nodeCtx, err))
		logger.WithError(result.Error).Error("node execution failed")
		e.closeSpan(spanID, result)
		return result
	}

	if output == nil {
		output = map[string]interface{}{}
	}

	meta := ExtractMeta(output)
	result.Status = types.NodeStatusCompleted
	result.Output = e.formatters.Format(node.Type, output)
	result.Cost = meta.Cost
	result.Tokens = meta.Tokens
	result.CompletedAt = types.Now()

	logger.
		WithField("duration_ms", result.Duration().Milliseconds()).
		WithField("cost", meta.Cost.String()).
		Debug("node execution completed")

	e.closeSpan(spanID, result)
	return result
}

// invoke calls the handler with panic recovery: a panicking handler yields an
// internal error instead of tearing down the execution.
func (e *Executor) invoke(ctx context.Context, handler registry.Handler, req Request) (output map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = &panicError{value: r}
		}
	}()
	nc := registry.NodeContext{Progress: req.Progress, Secrets: req.Secrets}
	return handler.Execute(ctx, req.Inputs, req.Node.Config, nc)
}

// panicError marks an error produced by handler panic recovery.
type panicError struct {
	value interface{}
}

func (p *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", p.value)
}

// classify maps a handler failure onto the closed error kind enumeration.
// Handlers may return a typed *types.NodeError to choose the kind themselves.
func (e *Executor) classify(ctx context.Context, err error) *types.NodeError {
	causeID := uuid.New().String()

	var nodeErr *types.NodeError
	if errors.As(err, &nodeErr) {
		if nodeErr.CauseID == "" {
			nodeErr.CauseID = causeID
		}
		return nodeErr
	}

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return types.NewNodeError(types.ErrKindInternal, causeID, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.NewNodeError(types.ErrKindTimeout, causeID, err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return types.NewNodeError(types.ErrKindCanceled, causeID, err)
	default:
		return types.NewNodeError(types.ErrKindProvider, causeID, err)
	}
}

// fail seals the result as failed
func (e *Executor) fail(result *types.NodeResult, nodeErr *types.NodeError) {
	result.Status = types.NodeStatusFailed
	result.Error = nodeErr
	result.CompletedAt = types.Now()
}

// closeSpan attaches terminal attributes and ends the span. Spans always
// close, whatever the outcome.
func (e *Executor) closeSpan(spanID string, result *types.NodeResult) {
	e.spans.AddAttributes(spanID, map[string]interface{}{
		"node.status":  string(result.Status),
		"cost":         result.Cost.String(),
		"tokens.total": result.Tokens.Total,
		"duration_ms":  result.Duration().Milliseconds(),
	})
	status := types.SpanStatusOK
	if result.Status == types.NodeStatusFailed {
		status = types.SpanStatusError
	}
	e.spans.End(spanID, status)
}

// spanType returns the handler's recommended span type, defaulting to "node".
func spanType(handler registry.Handler) string {
	if handler == nil {
		return "node"
	}
	if t := handler.Metadata().SpanType; t != "" {
		return t
	}
	return "node"
}

// nodeTimeout reads the optional timeout_ms config key. JSON numbers decode
// as float64; integers are accepted for programmatic construction.
func nodeTimeout(config map[string]interface{}) (time.Duration, bool) {
	raw, ok := config[configKeyTimeoutMS]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	}
	return 0, false
}
