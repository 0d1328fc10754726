// Package formatter provides the output formatter registry: optional per-type
// post-processors that canonicalize node outputs before downstream
// consumption (for example unifying {response} vs {text} into one shape).
package formatter

import (
	"sync"

	"github.com/mettice/nodeai/pkg/types"
)

// Func canonicalizes a raw node output into a stable mapping. Formatters must
// be pure and total; a formatter that panics or returns nil is treated as
// absent and the raw output is used.
type Func func(raw map[string]interface{}) map[string]interface{}

// Registry holds output formatters keyed by node type. Like the node
// registry, it is populated at process start and read-only afterwards.
type Registry struct {
	formatters map[types.NodeType]Func
	mu         sync.RWMutex
}

// New creates an empty formatter registry
func New() *Registry {
	return &Registry{
		formatters: make(map[types.NodeType]Func),
	}
}

// Register sets the formatter for a node type, replacing any existing one.
func (r *Registry) Register(nodeType types.NodeType, f Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.formatters[nodeType] = f
}

// Has reports whether a formatter is registered for the node type.
func (r *Registry) Has(nodeType types.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.formatters[nodeType]
	return ok
}

// Format canonicalizes raw output through the type's formatter. Returns the
// raw mapping unchanged when no formatter is registered, when the formatter
// returns nil, or when it panics.
func (r *Registry) Format(nodeType types.NodeType, raw map[string]interface{}) map[string]interface{} {
	r.mu.RLock()
	f := r.formatters[nodeType]
	r.mu.RUnlock()

	if f == nil || raw == nil {
		return raw
	}

	formatted := safeFormat(f, raw)
	if formatted == nil {
		return raw
	}
	return formatted
}

// safeFormat invokes the formatter with panic recovery. A panicking formatter
// is treated as absent.
func safeFormat(f Func, raw map[string]interface{}) (out map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	return f(raw)
}
