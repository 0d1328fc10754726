// Package registry resolves node type tags to node handlers.
// Handlers carry introspection metadata the engine consumes: input/output
// schemas for validation and digests, retrieval-pattern classification for
// query tracing, and the fatal-on-error flag for failure propagation.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/mettice/nodeai/pkg/types"
)

// ProgressSink receives intermediate progress from a running node handler.
// Implementations must be safe for concurrent use.
type ProgressSink interface {
	// Progress reports partial completion. Any field may be left unset:
	// fraction is nil when unknown, partial carries streamed partial output.
	Progress(fraction *float64, message string, partial map[string]interface{})
}

// SecretsLookup resolves provider credentials for node handlers. The engine
// never reads secret values itself; it only plumbs the lookup through.
type SecretsLookup interface {
	Get(key string) (string, bool)
}

// NodeContext carries the side channels a handler may use during execution.
// Cancellation travels on the context.Context passed to Execute.
type NodeContext struct {
	Progress ProgressSink
	Secrets  SecretsLookup
}

// Metadata describes a handler for engine-side decisions.
type Metadata struct {
	DisplayName string
	Category    string

	// RetrievalPattern marks the node as part of a retrieval pipeline; the
	// engine appends a QueryTrace step for each such node.
	RetrievalPattern bool

	// StepType is the trace step classification used when RetrievalPattern
	// is set. Empty maps to StepTypeOther.
	StepType types.StepType

	// SpanType is the recommended observability span type (for example
	// "llm", "retriever", "tool"). Empty defaults to "node".
	SpanType string

	// FatalOnError transitions the whole execution to failed when this
	// node fails, after in-flight nodes terminate.
	FatalOnError bool
}

// Handler is the invocation contract for one node type. Handlers are expected
// to be idempotent with respect to external side effects: the engine does not
// retry. A handler must never swallow cancellation.
type Handler interface {
	// NodeType returns the type tag this handler serves.
	NodeType() types.NodeType

	// Execute runs the node. Inputs are assembled by the data collector;
	// config comes verbatim from the workflow definition. Cancellation is
	// signaled through ctx.
	Execute(ctx context.Context, inputs, config map[string]interface{}, nc NodeContext) (map[string]interface{}, error)

	// InputSchema and OutputSchema return JSON-shaped contracts used for
	// soft validation and digests only, never strict enforcement.
	InputSchema() map[string]interface{}
	OutputSchema() map[string]interface{}

	// Metadata returns the handler's engine-facing description.
	Metadata() Metadata
}

// Registry manages handler registration and lookup. It is populated at
// process start and read-only afterwards; lookups are safe for concurrent
// use from any number of executions.
type Registry struct {
	handlers map[types.NodeType]Handler
	mu       sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		handlers: make(map[types.NodeType]Handler),
	}
}

// Register adds a handler to the registry.
// Returns error if a handler for this type already exists.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodeType := h.NodeType()
	if _, exists := r.handlers[nodeType]; exists {
		return fmt.Errorf("handler already registered for type: %s", nodeType)
	}

	r.handlers[nodeType] = h
	return nil
}

// MustRegister registers a handler and panics on error.
// Useful for initialization where registration must succeed.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Get returns the handler for a node type, or nil if none is registered.
func (r *Registry) Get(nodeType types.NodeType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.handlers[nodeType]
}

// Has reports whether a handler is registered for the node type.
func (r *Registry) Has(nodeType types.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[nodeType]
	return ok
}

// StepType returns the trace step classification for a node type. Node types
// that are not retrieval-pattern return false.
func (r *Registry) StepType(nodeType types.NodeType) (types.StepType, bool) {
	h := r.Get(nodeType)
	if h == nil {
		return "", false
	}
	meta := h.Metadata()
	if !meta.RetrievalPattern {
		return "", false
	}
	if meta.StepType == "" {
		return types.StepTypeOther, true
	}
	return meta.StepType, true
}

// ListRegisteredTypes returns all registered node types
func (r *Registry) ListRegisteredTypes() []types.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]types.NodeType, 0, len(r.handlers))
	for nodeType := range r.handlers {
		list = append(list, nodeType)
	}
	return list
}
