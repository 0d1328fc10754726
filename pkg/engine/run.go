package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mettice/nodeai/pkg/collector"
	"github.com/mettice/nodeai/pkg/cost"
	"github.com/mettice/nodeai/pkg/executor"
	"github.com/mettice/nodeai/pkg/graph"
	"github.com/mettice/nodeai/pkg/logging"
	"github.com/mettice/nodeai/pkg/stream"
	"github.com/mettice/nodeai/pkg/trace"
	"github.com/mettice/nodeai/pkg/types"
)

// runContext is the per-execution state. It is created by Run and discarded
// when the Execution seals; nothing in it outlives the run.
type runContext struct {
	wf        *types.Workflow
	g         *graph.Graph
	plan      []string
	execution *types.Execution
	memo      *collector.Memo
	tracker   *cost.Tracker
	builder   *trace.Builder
	logger    *logging.Logger
	bus       stream.Bus
	rootSpanID string

	// mu is the single-writer lock over the results map and the ordered
	// error list. Collectors read only terminal results through snapshots
	// taken under this lock.
	mu    sync.Mutex
	fatal bool
}

// validate builds the graph, verifies structure, and computes the plan.
// Pending NodeResults are created for every planned node.
func (rc *runContext) validate(e *Engine) error {
	if e.cfg.MaxNodes > 0 && len(rc.wf.Nodes) > e.cfg.MaxNodes {
		return &types.ValidationError{
			Kind:    types.ErrKindWorkflowTooLarge,
			Message: fmt.Sprintf("workflow has %d nodes (limit %d)", len(rc.wf.Nodes), e.cfg.MaxNodes),
		}
	}
	if e.cfg.MaxEdges > 0 && len(rc.wf.Edges) > e.cfg.MaxEdges {
		return &types.ValidationError{
			Kind:    types.ErrKindWorkflowTooLarge,
			Message: fmt.Sprintf("workflow has %d edges (limit %d)", len(rc.wf.Edges), e.cfg.MaxEdges),
		}
	}

	rc.g = graph.New(rc.wf)
	if err := rc.g.Validate(e.registry.Has); err != nil {
		return err
	}

	plan, err := rc.g.Plan()
	if err != nil {
		return err
	}
	rc.plan = plan

	for _, nodeID := range plan {
		rc.execution.Results[nodeID] = &types.NodeResult{
			NodeID: nodeID,
			Status: types.NodeStatusPending,
		}
	}

	// The query trace exists only when the workflow contains at least one
	// retrieval-pattern node.
	traceable := false
	for i := range rc.wf.Nodes {
		if _, ok := e.registry.StepType(rc.wf.Nodes[i].Type); ok {
			traceable = true
			break
		}
	}
	rc.builder = trace.NewBuilder(rc.execution.ExecutionID, traceable)
	return nil
}

// dispatch runs every planned node, sequentially for P=1 or through a
// bounded worker set for P>1.
func (rc *runContext) dispatch(ctx context.Context, e *Engine) {
	if e.cfg.MaxParallelNodes <= 1 {
		for _, nodeID := range rc.plan {
			rc.processNode(ctx, e, nodeID)
		}
		return
	}
	rc.dispatchParallel(ctx, e, e.cfg.MaxParallelNodes)
}

// dispatchParallel consumes a ready queue seeded by the plan with a bounded
// worker set. A node becomes ready when all its predecessors have terminated;
// among ready nodes the lexicographically smallest id dispatches first,
// matching the plan's tie-break.
func (rc *runContext) dispatchParallel(ctx context.Context, e *Engine, workers int) {
	if workers > len(rc.plan) && len(rc.plan) > 0 {
		workers = len(rc.plan)
	}

	indegree := make(map[string]int, len(rc.plan))
	for _, nodeID := range rc.plan {
		indegree[nodeID] = 0
	}
	for i := range rc.wf.Edges {
		indegree[rc.wf.Edges[i].Target]++
	}

	var (
		schedMu   sync.Mutex
		cond      = sync.NewCond(&schedMu)
		ready     []string
		remaining = len(rc.plan)
		stop      bool
	)
	for _, nodeID := range rc.plan {
		if indegree[nodeID] == 0 {
			ready = insertSorted(ready, nodeID)
		}
	}

	worker := func() {
		for {
			schedMu.Lock()
			for len(ready) == 0 && remaining > 0 && !stop {
				cond.Wait()
			}
			if remaining == 0 || stop {
				schedMu.Unlock()
				return
			}
			nodeID := ready[0]
			ready = ready[1:]
			schedMu.Unlock()

			rc.processNode(ctx, e, nodeID)

			schedMu.Lock()
			remaining--
			for _, edge := range rc.g.OutEdges(nodeID) {
				indegree[edge.Target]--
				if indegree[edge.Target] == 0 {
					ready = insertSorted(ready, edge.Target)
				}
			}
			if ctx.Err() != nil || rc.isFatal() {
				stop = true
			}
			cond.Broadcast()
			schedMu.Unlock()
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	wg.Wait()

	// Whatever never started is skipped now that in-flight nodes have
	// terminated.
	rc.skipRemaining(ctx)
}

// processNode runs one node end to end: cancellation check, input collection,
// handler execution, bookkeeping, events, trace step.
func (rc *runContext) processNode(ctx context.Context, e *Engine, nodeID string) {
	if ctx.Err() != nil {
		rc.skip(nodeID, types.SkipReasonCanceled)
		return
	}
	if rc.isFatal() {
		rc.skip(nodeID, types.SkipReasonFatalError)
		return
	}

	node := rc.g.GetNode(nodeID)
	inputs, err := e.collector.Collect(node, rc.g, rc.resultsSnapshot(), rc.memo)
	if err != nil {
		if errors.Is(err, collector.ErrMissingRequiredInput) {
			rc.logger.WithNodeID(nodeID).WithError(err).Debug("node skipped: missing required input")
			rc.skip(nodeID, types.SkipReasonMissingInput)
			return
		}
		// Collection failures other than missing inputs are engine bugs;
		// surface them as a failed node rather than hiding them.
		rc.storeResult(e, node, &types.NodeResult{
			NodeID:      nodeID,
			Status:      types.NodeStatusFailed,
			Error:       types.NewNodeError(types.ErrKindInternal, "", err),
			StartedAt:   types.Now(),
			CompletedAt: types.Now(),
		}, nil)
		return
	}

	sink := &progressSink{rc: rc, node: node}
	result := e.executor.Execute(ctx, executor.Request{
		ExecutionID:  rc.execution.ExecutionID,
		WorkflowID:   rc.wf.ID,
		Node:         node,
		Inputs:       inputs,
		ParentSpanID: rc.rootSpanID,
		Progress:     sink,
		Secrets:      e.secrets,
		OnStart:      func(spanID string) { rc.markStarted(node, spanID) },
	})

	rc.storeResult(e, node, result, inputs)
}

// markStarted transitions the pending result to running and publishes
// node_started. Invoked by the executor after the span opens, before the
// handler runs, so node_started always precedes any progress event.
func (rc *runContext) markStarted(node *types.Node, spanID string) {
	rc.mu.Lock()
	if res := rc.execution.Results[node.ID]; res != nil {
		res.Status = types.NodeStatusRunning
		res.SpanID = spanID
	}
	rc.mu.Unlock()

	rc.publish(types.Event{
		Type:        types.EventNodeStarted,
		ExecutionID: rc.execution.ExecutionID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		SpanID:      spanID,
		Timestamp:   types.Now(),
	})
}

// storeResult publishes a terminal result into the execution: results map,
// cost tracking, error list, trace step, and the terminal event.
func (rc *runContext) storeResult(e *Engine, node *types.Node, result *types.NodeResult, inputs map[string]interface{}) {
	limits := trace.DigestLimits{
		MaxStringLen: e.cfg.DigestMaxStringLen,
		HashOverLen:  e.cfg.DigestHashOverLen,
	}

	rc.mu.Lock()
	rc.execution.Results[node.ID] = result

	if result.Status == types.NodeStatusFailed && result.Error != nil {
		rc.execution.Errors = append(rc.execution.Errors, types.ExecutionError{
			NodeID:  node.ID,
			Kind:    result.Error.Kind,
			Message: result.Error.Message,
			CauseID: result.Error.CauseID,
		})
		if h := e.registry.Get(node.Type); h != nil && h.Metadata().FatalOnError {
			rc.fatal = true
		}
	}
	rc.mu.Unlock()

	if result.Status == types.NodeStatusCompleted {
		meta := executor.ExtractMeta(result.Output)
		rc.tracker.Add(types.CostRecord{
			ExecutionID: rc.execution.ExecutionID,
			WorkflowID:  rc.wf.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			Cost:        result.Cost,
			Tokens:      result.Tokens,
			Provider:    meta.Provider,
			Model:       meta.Model,
			Timestamp:   types.Now(),
		})
	}

	if stepType, ok := e.registry.StepType(node.Type); ok {
		rc.builder.Append(types.TraceStep{
			SpanID:        result.SpanID,
			ParentSpanID:  rc.rootSpanID,
			StepType:      stepType,
			NodeID:        node.ID,
			StartedAt:     result.StartedAt,
			DurationMS:    result.Duration().Milliseconds(),
			InputsDigest:  trace.Digest(inputs, limits),
			OutputsDigest: trace.Digest(result.Output, limits),
		})
	}

	if e.telemetry != nil {
		e.telemetry.RecordNodeExecution(context.Background(), node.ID, node.Type, result.Duration(), result.Status)
	}

	switch result.Status {
	case types.NodeStatusCompleted:
		rc.publish(types.Event{
			Type:         types.EventNodeCompleted,
			ExecutionID:  rc.execution.ExecutionID,
			NodeID:       node.ID,
			NodeType:     node.Type,
			SpanID:       result.SpanID,
			Timestamp:    types.Now(),
			DurationMS:   result.Duration().Milliseconds(),
			Cost:         result.Cost,
			TokensTotal:  result.Tokens.Total,
			OutputDigest: trace.Digest(result.Output, limits),
		})
	case types.NodeStatusFailed:
		rc.publish(types.Event{
			Type:        types.EventNodeFailed,
			ExecutionID: rc.execution.ExecutionID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			SpanID:      result.SpanID,
			Timestamp:   types.Now(),
			ErrorKind:   result.Error.Kind,
			Message:     result.Error.Message,
		})
	}
}

// skip marks a non-terminal node skipped and publishes node_skipped.
func (rc *runContext) skip(nodeID string, reason types.SkipReason) {
	rc.mu.Lock()
	res := rc.execution.Results[nodeID]
	if res == nil || res.Status.Terminal() {
		rc.mu.Unlock()
		return
	}
	res.Status = types.NodeStatusSkipped
	res.SkipReason = reason
	rc.mu.Unlock()

	rc.publish(types.Event{
		Type:        types.EventNodeSkipped,
		ExecutionID: rc.execution.ExecutionID,
		NodeID:      nodeID,
		Timestamp:   types.Now(),
		Reason:      reason,
	})
}

// skipRemaining marks every still-pending node skipped, choosing the reason
// by why dispatch stopped.
func (rc *runContext) skipRemaining(ctx context.Context) {
	reason := types.SkipReasonCanceled
	if ctx.Err() == nil && rc.isFatal() {
		reason = types.SkipReasonFatalError
	}
	for _, nodeID := range rc.plan {
		rc.mu.Lock()
		pending := rc.execution.Results[nodeID].Status == types.NodeStatusPending
		rc.mu.Unlock()
		if pending {
			rc.skip(nodeID, reason)
		}
	}
}

// resultsSnapshot copies the results map under the writer lock so collectors
// never race with concurrent publication. The NodeResult values themselves
// are immutable once terminal and shared by reference.
func (rc *runContext) resultsSnapshot() map[string]*types.NodeResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	snapshot := make(map[string]*types.NodeResult, len(rc.execution.Results))
	for id, res := range rc.execution.Results {
		snapshot[id] = res
	}
	return snapshot
}

func (rc *runContext) isFatal() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.fatal
}

func (rc *runContext) publish(event types.Event) {
	rc.bus.Publish(rc.execution.ExecutionID, event)
}

// insertSorted inserts id into its sorted position in the ready list.
func insertSorted(list []string, id string) []string {
	pos := sort.SearchStrings(list, id)
	list = append(list, "")
	copy(list[pos+1:], list[pos:])
	list[pos] = id
	return list
}

// progressSink forwards handler progress into node_progress events.
type progressSink struct {
	rc   *runContext
	node *types.Node
}

// Progress implements registry.ProgressSink
func (p *progressSink) Progress(fraction *float64, message string, partial map[string]interface{}) {
	p.rc.publish(types.Event{
		Type:        types.EventNodeProgress,
		ExecutionID: p.rc.execution.ExecutionID,
		NodeID:      p.node.ID,
		NodeType:    p.node.Type,
		Timestamp:   types.Now(),
		Fraction:    fraction,
		Message:     message,
		Partial:     partial,
	})
}
