package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mettice/nodeai/pkg/types"
)

func strPtr(s string) *string { return &s }

func workflow(nodes []string, edges []types.Edge) *types.Workflow {
	wf := &types.Workflow{ID: "wf-1", Edges: edges}
	for _, id := range nodes {
		wf.Nodes = append(wf.Nodes, types.Node{ID: id, Type: "text_input"})
	}
	return wf
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []string
		edges    []types.Edge
		wantKind types.ErrorKind
	}{
		{
			name:  "valid linear workflow",
			nodes: []string{"A", "B"},
			edges: []types.Edge{{Source: "A", Target: "B"}},
		},
		{
			name:     "duplicate node id",
			nodes:    []string{"A", "A"},
			wantKind: types.ErrKindDuplicateNodeID,
		},
		{
			name:     "dangling edge source",
			nodes:    []string{"A"},
			edges:    []types.Edge{{Source: "missing", Target: "A"}},
			wantKind: types.ErrKindDanglingEdge,
		},
		{
			name:     "dangling edge target",
			nodes:    []string{"A"},
			edges:    []types.Edge{{Source: "A", Target: "missing"}},
			wantKind: types.ErrKindDanglingEdge,
		},
		{
			name:     "self loop",
			nodes:    []string{"A"},
			edges:    []types.Edge{{Source: "A", Target: "A"}},
			wantKind: types.ErrKindInvalidEdge,
		},
		{
			name:  "duplicate edge quadruple",
			nodes: []string{"A", "B"},
			edges: []types.Edge{
				{Source: "A", Target: "B"},
				{Source: "A", Target: "B"},
			},
			wantKind: types.ErrKindInvalidEdge,
		},
		{
			name:  "same pair with distinct handles is allowed",
			nodes: []string{"A", "B"},
			edges: []types.Edge{
				{Source: "A", Target: "B"},
				{Source: "A", Target: "B", SourceHandle: strPtr("text"), TargetHandle: strPtr("query")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(workflow(tt.nodes, tt.edges))
			err := g.Validate(nil)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("expected valid workflow, got %v", err)
				}
				return
			}
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, verr.Kind)
			}
		})
	}
}

func TestValidateUnknownType(t *testing.T) {
	g := New(workflow([]string{"A"}, nil))
	err := g.Validate(func(types.NodeType) bool { return false })

	var verr *types.ValidationError
	if !errors.As(err, &verr) || verr.Kind != types.ErrKindUnknownNodeType {
		t.Fatalf("expected unknown_node_type, got %v", err)
	}
}

func TestPlanLexicographicTieBreak(t *testing.T) {
	// Three disconnected roots plus a join node: roots must plan in id order.
	g := New(workflow([]string{"c", "a", "b", "z"}, []types.Edge{
		{Source: "a", Target: "z"},
		{Source: "b", Target: "z"},
		{Source: "c", Target: "z"},
	}))

	plan, err := g.Plan()
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	want := []string{"a", "b", "c", "z"}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("expected plan %v, got %v", want, plan)
	}
}

func TestPlanDeterminism(t *testing.T) {
	g := New(workflow([]string{"n3", "n1", "n4", "n2", "n5"}, []types.Edge{
		{Source: "n1", Target: "n4"},
		{Source: "n2", Target: "n4"},
		{Source: "n4", Target: "n5"},
	}))

	first, err := g.Plan()
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := g.Plan()
		if err != nil {
			t.Fatalf("plan failed on run %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("plan not deterministic: %v vs %v", first, again)
		}
	}
}

func TestPlanRespectsEdges(t *testing.T) {
	g := New(workflow([]string{"A", "B", "C", "D"}, []types.Edge{
		{Source: "A", Target: "B"},
		{Source: "B", Target: "C"},
		{Source: "C", Target: "D"},
	}))

	plan, err := g.Plan()
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	want := []string{"A", "B", "C", "D"}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("expected plan %v, got %v", want, plan)
	}
}

func TestPlanCycleDetection(t *testing.T) {
	g := New(workflow([]string{"A", "B"}, []types.Edge{
		{Source: "A", Target: "B"},
		{Source: "B", Target: "A"},
	}))

	_, err := g.Plan()
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != types.ErrKindCyclicWorkflow {
		t.Fatalf("expected cyclic_workflow, got %s", verr.Kind)
	}
	want := []string{"A", "B", "A"}
	if !reflect.DeepEqual(verr.Cycle, want) {
		t.Errorf("expected cycle %v, got %v", want, verr.Cycle)
	}
}

func TestPlanReportsMinimalCycle(t *testing.T) {
	// A long cycle and a two-node cycle; the short one must be reported.
	g := New(workflow([]string{"p", "q", "r", "s", "x", "y"}, []types.Edge{
		{Source: "p", Target: "q"},
		{Source: "q", Target: "r"},
		{Source: "r", Target: "s"},
		{Source: "s", Target: "p"},
		{Source: "x", Target: "y"},
		{Source: "y", Target: "x"},
	}))

	_, err := g.Plan()
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Cycle) != 3 {
		t.Errorf("expected the minimal 2-node cycle, got %v", verr.Cycle)
	}
}

func TestPlanEmptyGraph(t *testing.T) {
	g := New(workflow(nil, nil))
	plan, err := g.Plan()
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan) != 0 {
		t.Errorf("expected empty plan, got %v", plan)
	}
}

func TestAncestors(t *testing.T) {
	// A -> B -> D, A -> C -> D, A -> D
	g := New(workflow([]string{"A", "B", "C", "D"}, []types.Edge{
		{Source: "A", Target: "B"},
		{Source: "A", Target: "C"},
		{Source: "A", Target: "D"},
		{Source: "B", Target: "D"},
		{Source: "C", Target: "D"},
	}))

	hops := g.Ancestors("D")
	want := map[string]int{"A": 1, "B": 1, "C": 1}
	if !reflect.DeepEqual(hops, want) {
		t.Errorf("expected hops %v, got %v", want, hops)
	}

	// Without the shortcut edge, A is two hops away.
	g = New(workflow([]string{"A", "B", "D"}, []types.Edge{
		{Source: "A", Target: "B"},
		{Source: "B", Target: "D"},
	}))
	hops = g.Ancestors("D")
	want = map[string]int{"B": 1, "A": 2}
	if !reflect.DeepEqual(hops, want) {
		t.Errorf("expected hops %v, got %v", want, hops)
	}
}

func TestDescendants(t *testing.T) {
	g := New(workflow([]string{"A", "B", "C", "D"}, []types.Edge{
		{Source: "A", Target: "B"},
		{Source: "B", Target: "C"},
	}))

	got := g.Descendants("A")
	want := map[string]bool{"B": true, "C": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected descendants %v, got %v", want, got)
	}
	if len(g.Descendants("D")) != 0 {
		t.Error("expected no descendants for isolated node")
	}
}

func TestInEdgesDeclarationOrder(t *testing.T) {
	edges := []types.Edge{
		{Source: "B", Target: "D"},
		{Source: "A", Target: "D"},
		{Source: "C", Target: "D"},
	}
	g := New(workflow([]string{"A", "B", "C", "D"}, edges))

	got := g.InEdges("D")
	if len(got) != 3 {
		t.Fatalf("expected 3 in-edges, got %d", len(got))
	}
	order := []string{got[0].Source, got[1].Source, got[2].Source}
	want := []string{"B", "A", "C"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected declaration order %v, got %v", want, order)
	}
}
