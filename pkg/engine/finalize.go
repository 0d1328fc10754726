package engine

import (
	"context"
	"errors"

	"github.com/mettice/nodeai/pkg/types"
)

// finalize seals the execution: totals, trace, cost records, root span, and
// the terminal event.
func (rc *runContext) finalize(ctx context.Context, e *Engine) *types.Execution {
	exec := rc.execution
	exec.TotalCost = rc.tracker.Total()
	exec.TotalTokens = rc.tracker.Tokens()
	exec.QueryTrace = rc.builder.Trace()

	status := types.ExecutionStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = types.ExecutionStatusCanceled
	case rc.isFatal():
		status = types.ExecutionStatusFailed
	}
	exec.Status = status
	exec.CompletedAt = types.Now()

	rc.writeCostRecords(e)
	rc.closeRootSpan(e)

	if e.telemetry != nil {
		costValue, _ := exec.TotalCost.Float64()
		e.telemetry.RecordExecution(context.Background(), rc.wf.ID, status,
			exec.CompletedAt.Sub(exec.StartedAt.Time), costValue, exec.TotalTokens.Total)
	}

	rc.publish(types.Event{
		Type:        types.EventExecutionCompleted,
		ExecutionID: exec.ExecutionID,
		WorkflowID:  rc.wf.ID,
		Timestamp:   types.Now(),
		Status:      status,
		TotalCost:   exec.TotalCost,
		DurationMS:  exec.CompletedAt.Sub(exec.StartedAt.Time).Milliseconds(),
	})

	rc.logger.
		WithField("status", string(status)).
		WithField("total_cost", exec.TotalCost.String()).
		WithField("duration_ms", exec.CompletedAt.Sub(exec.StartedAt.Time).Milliseconds()).
		Info("workflow execution completed")

	return exec
}

// finalizeValidationFailure seals a run that never dispatched a node.
func (rc *runContext) finalizeValidationFailure(_ context.Context, e *Engine, err error) *types.Execution {
	exec := rc.execution

	entry := types.ExecutionError{Kind: types.ErrKindInternal, Message: err.Error()}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		entry = types.ExecutionError{
			Kind:    verr.Kind,
			NodeID:  verr.NodeID,
			Message: verr.Message,
			Cycle:   verr.Cycle,
		}
	}
	exec.Errors = append(exec.Errors, entry)
	exec.Status = types.ExecutionStatusFailed
	exec.CompletedAt = types.Now()

	rc.logger.WithError(err).Error("workflow validation failed")
	rc.closeRootSpan(e)

	rc.publish(types.Event{
		Type:        types.EventExecutionCompleted,
		ExecutionID: exec.ExecutionID,
		WorkflowID:  rc.wf.ID,
		Timestamp:   types.Now(),
		Status:      types.ExecutionStatusFailed,
		TotalCost:   exec.TotalCost,
		DurationMS:  exec.CompletedAt.Sub(exec.StartedAt.Time).Milliseconds(),
	})

	return exec
}

// writeCostRecords appends the execution's cost records to the durable
// ledger. Sink failures are logged and swallowed: infrastructure errors never
// fail an execution.
func (rc *runContext) writeCostRecords(e *Engine) {
	for _, record := range rc.tracker.Records() {
		// The run context may already be canceled; ledger writes get a
		// fresh context so a canceled run still accounts its costs.
		if err := e.costSink.Record(context.Background(), record); err != nil {
			rc.logger.WithNodeID(record.NodeID).WithError(err).Warn("failed to append cost record")
		}
	}
}

// closeRootSpan stamps terminal attributes and ends the execution span.
func (rc *runContext) closeRootSpan(e *Engine) {
	exec := rc.execution
	e.spans.AddAttributes(rc.rootSpanID, map[string]interface{}{
		"execution.status": string(exec.Status),
		"total_cost":       exec.TotalCost.String(),
		"tokens.total":     exec.TotalTokens.Total,
		"duration_ms":      exec.CompletedAt.Sub(exec.StartedAt.Time).Milliseconds(),
	})
	status := types.SpanStatusOK
	if exec.Status == types.ExecutionStatusFailed {
		status = types.SpanStatusError
	}
	e.spans.End(rc.rootSpanID, status)
}
