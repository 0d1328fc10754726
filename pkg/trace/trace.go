package trace

import (
	"sort"
	"sync"
	"time"

	"github.com/mettice/nodeai/pkg/types"
)

// Builder accumulates the QueryTrace for one execution. Steps are appended in
// the order their originating nodes terminated; with concurrent dispatch this
// order is nondeterministic across runs and consumers must not assume DAG
// order.
type Builder struct {
	mu          sync.Mutex
	executionID string
	enabled     bool
	steps       []types.TraceStep
}

// NewBuilder creates a trace builder. The engine enables it only when the
// workflow contains at least one retrieval-pattern node.
func NewBuilder(executionID string, enabled bool) *Builder {
	return &Builder{executionID: executionID, enabled: enabled}
}

// Enabled reports whether steps are being collected.
func (b *Builder) Enabled() bool {
	return b.enabled
}

// Append adds a step in termination order. No-op when the builder is
// disabled.
func (b *Builder) Append(step types.TraceStep) {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, step)
}

// Trace seals and returns the query trace, or nil when tracing was disabled.
func (b *Builder) Trace() *types.QueryTrace {
	if !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	steps := make([]types.TraceStep, len(b.steps))
	copy(steps, b.steps)

	// Steps are appended as nodes terminate, but under concurrent dispatch
	// an append can land after a later-terminating node's. The sealed trace
	// is ordered by termination time.
	sort.SliceStable(steps, func(i, j int) bool {
		return completion(steps[i]).Before(completion(steps[j]))
	})
	return &types.QueryTrace{ExecutionID: b.executionID, Steps: steps}
}

// completion derives a step's termination time from its start and duration.
func completion(step types.TraceStep) time.Time {
	return step.StartedAt.Add(time.Duration(step.DurationMS) * time.Millisecond)
}
