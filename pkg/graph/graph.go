// Package graph provides DAG operations for workflow execution planning.
// This includes structural validation, deterministic topological ordering,
// cycle detection with path reporting, and the ancestor queries the data
// collector needs for indirect-source resolution.
package graph

import (
	"fmt"
	"sort"

	"github.com/mettice/nodeai/pkg/types"
)

// Graph represents a workflow graph with nodes and edges
type Graph struct {
	nodes []types.Node
	edges []types.Edge

	index     map[string]int      // node id -> position in nodes
	adjacency map[string][]string // source -> targets
	reverse   map[string][]string // target -> sources
}

// New creates a Graph from a workflow. The workflow is not mutated.
func New(wf *types.Workflow) *Graph {
	g := &Graph{
		nodes:     wf.Nodes,
		edges:     wf.Edges,
		index:     make(map[string]int, len(wf.Nodes)),
		adjacency: make(map[string][]string, len(wf.Nodes)),
		reverse:   make(map[string][]string, len(wf.Nodes)),
	}
	for i := range wf.Nodes {
		g.index[wf.Nodes[i].ID] = i
	}
	for i := range wf.Edges {
		edge := &wf.Edges[i]
		g.adjacency[edge.Source] = append(g.adjacency[edge.Source], edge.Target)
		g.reverse[edge.Target] = append(g.reverse[edge.Target], edge.Source)
	}
	return g
}

// Validate verifies the structural invariants of the workflow:
// no duplicate or empty node ids, every node type registered, every edge
// endpoint present, no self-loops, and at most one edge per
// (source, source_handle, target, target_handle) quadruple.
//
// The known callback reports whether a node type is registered; pass nil to
// skip the registry check. All validation errors are fatal: no partial
// execution may begin after one is returned.
func (g *Graph) Validate(known func(types.NodeType) bool) error {
	seen := make(map[string]bool, len(g.nodes))
	for i := range g.nodes {
		node := &g.nodes[i]
		if node.ID == "" {
			return &types.ValidationError{
				Kind:    types.ErrKindDuplicateNodeID,
				Message: "node ID is required",
			}
		}
		if seen[node.ID] {
			return &types.ValidationError{
				Kind:    types.ErrKindDuplicateNodeID,
				NodeID:  node.ID,
				Message: fmt.Sprintf("duplicate node ID %q", node.ID),
			}
		}
		seen[node.ID] = true

		if known != nil && !known(node.Type) {
			return &types.ValidationError{
				Kind:    types.ErrKindUnknownNodeType,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %q has unregistered type %q", node.ID, node.Type),
			}
		}
	}

	quads := make(map[string]bool, len(g.edges))
	for i := range g.edges {
		edge := &g.edges[i]
		if !seen[edge.Source] || !seen[edge.Target] {
			return &types.ValidationError{
				Kind:    types.ErrKindDanglingEdge,
				Source:  edge.Source,
				Target:  edge.Target,
				Message: fmt.Sprintf("edge %s -> %s references a missing node", edge.Source, edge.Target),
			}
		}
		if edge.Source == edge.Target {
			return &types.ValidationError{
				Kind:    types.ErrKindInvalidEdge,
				Source:  edge.Source,
				Target:  edge.Target,
				Message: fmt.Sprintf("self-loop on node %q", edge.Source),
			}
		}
		quad := edge.Source + "\x00" + handle(edge.SourceHandle) + "\x00" + edge.Target + "\x00" + handle(edge.TargetHandle)
		if quads[quad] {
			return &types.ValidationError{
				Kind:    types.ErrKindInvalidEdge,
				Source:  edge.Source,
				Target:  edge.Target,
				Message: fmt.Sprintf("duplicate edge %s -> %s", edge.Source, edge.Target),
			}
		}
		quads[quad] = true
	}
	return nil
}

func handle(h *string) string {
	if h == nil {
		return ""
	}
	return *h
}

// Plan computes the execution order using Kahn's algorithm with deterministic
// tie-breaking: whenever more than one node is ready, the lexicographically
// smallest id runs first. The returned sequence is therefore bit-for-bit
// identical across runs for a fixed workflow.
//
// Returns a ValidationError of kind cyclic_workflow naming a minimal cycle
// path when the edge set is not acyclic.
func (g *Graph) Plan() ([]string, error) {
	numNodes := len(g.nodes)
	if numNodes == 0 {
		return []string{}, nil
	}

	inDegree := make(map[string]int, numNodes)
	for i := range g.nodes {
		inDegree[g.nodes[i].ID] = 0
	}
	for i := range g.edges {
		inDegree[g.edges[i].Target]++
	}

	// Ready list kept sorted so the smallest id is always dispatched next.
	ready := make([]string, 0, numNodes)
	for nodeID, degree := range inDegree {
		if degree == 0 {
			ready = insertSorted(ready, nodeID)
		}
	}

	order := make([]string, 0, numNodes)
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, neighbor := range g.adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = insertSorted(ready, neighbor)
			}
		}
	}

	if len(order) != numNodes {
		cycle := g.findCycle(inDegree)
		return nil, &types.ValidationError{
			Kind:    types.ErrKindCyclicWorkflow,
			Cycle:   cycle,
			Message: "workflow contains a cycle",
		}
	}
	return order, nil
}

// insertSorted inserts id into its sorted position (binary search, then a
// shift). The ready list stays small in practice, so a sorted slice beats a
// heap here.
func insertSorted(list []string, id string) []string {
	pos := sort.SearchStrings(list, id)
	list = append(list, "")
	copy(list[pos+1:], list[pos:])
	list[pos] = id
	return list
}

// findCycle locates a minimal cycle among the nodes Kahn could not order.
// For each residual node it runs a BFS back to itself over residual edges and
// keeps the shortest closed path found, reported as ["A", "B", "A"].
func (g *Graph) findCycle(inDegree map[string]int) []string {
	residual := make(map[string]bool)
	for id, degree := range inDegree {
		if degree > 0 {
			residual[id] = true
		}
	}

	starts := make([]string, 0, len(residual))
	for id := range residual {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	var best []string
	for _, start := range starts {
		path := g.shortestCycleFrom(start, residual)
		if path != nil && (best == nil || len(path) < len(best)) {
			best = path
		}
	}
	return best
}

// shortestCycleFrom runs a BFS from start back to start over residual edges.
func (g *Graph) shortestCycleFrom(start string, residual map[string]bool) []string {
	type item struct {
		id   string
		path []string
	}
	queue := []item{{id: start, path: []string{start}}}
	visited := map[string]bool{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		neighbors := append([]string(nil), g.adjacency[current.id]...)
		sort.Strings(neighbors)
		for _, next := range neighbors {
			if !residual[next] {
				continue
			}
			if next == start {
				return append(current.path, start)
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			path := make([]string, len(current.path)+1)
			copy(path, current.path)
			path[len(current.path)] = next
			queue = append(queue, item{id: next, path: path})
		}
	}
	return nil
}

// GetNode retrieves a node by its ID
func (g *Graph) GetNode(nodeID string) *types.Node {
	if i, ok := g.index[nodeID]; ok {
		return &g.nodes[i]
	}
	return nil
}

// Nodes returns the node list in declaration order.
func (g *Graph) Nodes() []types.Node {
	return g.nodes
}

// InEdges returns all edges targeting the given node, in edge-declaration
// order. The collector relies on this order for direct-source processing.
func (g *Graph) InEdges(nodeID string) []types.Edge {
	var edges []types.Edge
	for _, edge := range g.edges {
		if edge.Target == nodeID {
			edges = append(edges, edge)
		}
	}
	return edges
}

// OutEdges returns all edges originating at the given node.
func (g *Graph) OutEdges(nodeID string) []types.Edge {
	var edges []types.Edge
	for _, edge := range g.edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Ancestors returns every ancestor of the target mapped to its hop count:
// direct sources are 1 hop away, their sources 2, and so on. When a node is
// reachable over several paths the smallest hop count wins.
func (g *Graph) Ancestors(nodeID string) map[string]int {
	hops := make(map[string]int)
	queue := []string{nodeID}
	depth := 0
	for len(queue) > 0 {
		depth++
		var next []string
		for _, id := range queue {
			for _, source := range g.reverse[id] {
				if _, ok := hops[source]; ok {
					continue
				}
				hops[source] = depth
				next = append(next, source)
			}
		}
		queue = next
	}
	return hops
}

// Descendants returns the set of nodes transitively reachable from nodeID.
func (g *Graph) Descendants(nodeID string) map[string]bool {
	reached := make(map[string]bool)
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, target := range g.adjacency[id] {
			if reached[target] {
				continue
			}
			reached[target] = true
			queue = append(queue, target)
		}
	}
	return reached
}
