// Package collector assembles the input mapping for a target node from the
// already-terminated upstream results, according to the workflow's edges.
//
// Upstream producers are partitioned into direct sources (an edge into the
// target exists) and indirect sources (ancestors reached only transitively).
// Direct writes are unconditional and processed in edge-declaration order
// with last-writer-wins for scalar fields; every direct write is additionally
// recorded under a {source_id}_{field} alias so earlier writers stay
// addressable. Indirect writes are conditional: they fill a field only when
// no direct writer assigned it, closest ancestor first.
package collector

import (
	"sort"
	"sync"

	"github.com/mettice/nodeai/pkg/formatter"
	"github.com/mettice/nodeai/pkg/graph"
	"github.com/mettice/nodeai/pkg/types"
)

// ProvenanceKey is the sibling metadata key recording source attribution when
// the collector merges list fields from multiple direct sources.
const ProvenanceKey = "_provenance"

// Collector builds node inputs from upstream results. A Collector is
// immutable after construction and safe for concurrent use across executions.
type Collector struct {
	mappings    map[types.NodeType][]FieldRule
	formatters  *formatter.Registry
	intelligent bool
}

// Option configures a Collector
type Option func(*Collector)

// WithMappings replaces the default field-mapping table.
func WithMappings(mappings map[types.NodeType][]FieldRule) Option {
	return func(c *Collector) {
		c.mappings = mappings
	}
}

// WithIntelligentRouting additionally exposes every terminated upstream
// result under namespaced {source_id}.{field} keys. The namespace is purely
// additive; heuristic writes are never removed or overridden.
func WithIntelligentRouting(enabled bool) Option {
	return func(c *Collector) {
		c.intelligent = enabled
	}
}

// New creates a Collector using the given formatter registry and the default
// field-mapping table.
func New(formatters *formatter.Registry, opts ...Option) *Collector {
	c := &Collector{
		mappings:   DefaultMappings(),
		formatters: formatters,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Memo caches formatter output per upstream result for one execution, so each
// upstream output is formatted exactly once no matter how many downstream
// nodes consume it.
type Memo struct {
	mu        sync.Mutex
	formatted map[string]map[string]interface{}
}

// NewMemo creates an empty per-execution memo
func NewMemo() *Memo {
	return &Memo{formatted: make(map[string]map[string]interface{})}
}

// format returns the canonicalized output for a source node, computing and
// caching it on first use.
func (c *Collector) format(memo *Memo, sourceID string, nodeType types.NodeType, raw map[string]interface{}) map[string]interface{} {
	memo.mu.Lock()
	defer memo.mu.Unlock()

	if cached, ok := memo.formatted[sourceID]; ok {
		return cached
	}
	out := raw
	if c.formatters != nil {
		out = c.formatters.Format(nodeType, raw)
	}
	memo.formatted[sourceID] = out
	return out
}

// Collect produces the input mapping for the target node.
//
// Returns ErrMissingRequiredInput when any direct source did not terminate
// completed; the caller marks the target skipped. A failed indirect source
// does not block collection.
func (c *Collector) Collect(target *types.Node, g *graph.Graph, results map[string]*types.NodeResult, memo *Memo) (map[string]interface{}, error) {
	inEdges := g.InEdges(target.ID)

	directIDs := make(map[string]bool, len(inEdges))
	for i := range inEdges {
		source := inEdges[i].Source
		directIDs[source] = true
		res := results[source]
		if res == nil || res.Status != types.NodeStatusCompleted {
			return nil, missingInput(target.ID, source)
		}
	}

	state := newMergeState()

	// Direct pass: edge-declaration order, unconditional writes.
	for i := range inEdges {
		edge := &inEdges[i]
		source := g.GetNode(edge.Source)
		out := c.format(memo, edge.Source, source.Type, results[edge.Source].Output)

		if edge.SourceHandle != nil || edge.TargetHandle != nil {
			c.routeHandle(state, edge, out)
			continue
		}
		c.applyRules(state, target.Type, edge.Source, out, true)
	}

	// Indirect pass: ancestors by (hop count asc, id asc), conditional writes.
	for _, source := range c.indirectOrder(g, target.ID, directIDs) {
		res := results[source]
		if res == nil || res.Status != types.NodeStatusCompleted {
			continue
		}
		node := g.GetNode(source)
		out := c.format(memo, source, node.Type, res.Output)
		c.applyRules(state, target.Type, source, out, false)
	}

	// Intelligent routing: additive namespaced channel.
	if c.intelligent {
		c.addNamespaced(state, g, target.ID, directIDs, results, memo)
	}

	return state.inputs, nil
}

// routeHandle applies the most specific binding: only the named handle field
// flows along the edge, overriding type-based mapping for that edge.
func (c *Collector) routeHandle(state *mergeState, edge *types.Edge, out map[string]interface{}) {
	srcField := ""
	if edge.SourceHandle != nil {
		srcField = *edge.SourceHandle
	} else {
		srcField = *edge.TargetHandle
	}
	dstField := srcField
	if edge.TargetHandle != nil {
		dstField = *edge.TargetHandle
	}

	value, ok := out[srcField]
	if !ok {
		return
	}
	state.writeDirect(dstField, value, edge.Source, false)
}

// applyRules runs the target type's field-mapping policy against one source
// output. Unrecognized target types fall back to a verbatim field merge.
func (c *Collector) applyRules(state *mergeState, targetType types.NodeType, sourceID string, out map[string]interface{}, direct bool) {
	rules, ok := c.mappings[targetType]
	if !ok {
		// Generic merge: every output field copied under its own name.
		for _, field := range sortedKeys(out) {
			if direct {
				state.writeDirect(field, out[field], sourceID, false)
			} else {
				state.writeIndirect(field, out[field])
			}
		}
		return
	}

	for i := range rules {
		rule := &rules[i]
		for _, candidate := range rule.Sources {
			value, present := out[candidate]
			if !present {
				continue
			}
			if rule.Render != nil {
				value = rule.Render(value, out)
			}
			if direct {
				state.writeDirect(rule.Target, value, sourceID, rule.List)
			} else {
				state.writeIndirect(rule.Target, value)
			}
			break
		}
	}
}

// indirectOrder returns the target's indirect sources sorted by hop count,
// then lexicographically by id. Iterating closest-first makes the first
// conditional writer the winner, which is exactly the conflict rule.
func (c *Collector) indirectOrder(g *graph.Graph, targetID string, directIDs map[string]bool) []string {
	hops := g.Ancestors(targetID)
	ids := make([]string, 0, len(hops))
	for id := range hops {
		if directIDs[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if hops[ids[i]] != hops[ids[j]] {
			return hops[ids[i]] < hops[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// addNamespaced exposes all terminated upstream outputs under
// {source_id}.{field} keys without touching heuristic writes.
func (c *Collector) addNamespaced(state *mergeState, g *graph.Graph, targetID string, directIDs map[string]bool, results map[string]*types.NodeResult, memo *Memo) {
	upstream := make(map[string]bool, len(directIDs))
	for id := range directIDs {
		upstream[id] = true
	}
	for id := range g.Ancestors(targetID) {
		upstream[id] = true
	}

	for id := range upstream {
		res := results[id]
		if res == nil || res.Status != types.NodeStatusCompleted {
			continue
		}
		node := g.GetNode(id)
		out := c.format(memo, id, node.Type, res.Output)
		for field, value := range out {
			state.inputs[id+"."+field] = value
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
