package collector

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mettice/nodeai/pkg/formatter"
	"github.com/mettice/nodeai/pkg/graph"
	"github.com/mettice/nodeai/pkg/types"
)

func strPtr(s string) *string { return &s }

func completed(nodeID string, output map[string]interface{}) *types.NodeResult {
	return &types.NodeResult{
		NodeID: nodeID,
		Status: types.NodeStatusCompleted,
		Output: output,
	}
}

func failed(nodeID string) *types.NodeResult {
	return &types.NodeResult{
		NodeID: nodeID,
		Status: types.NodeStatusFailed,
		Error:  types.NewNodeError(types.ErrKindProvider, "cause-1", errors.New("boom")),
	}
}

func TestCollectLinearRAG(t *testing.T) {
	wf := &types.Workflow{
		ID: "rag",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeEmbed},
			{ID: "C", Type: types.NodeTypeRetrieve},
			{ID: "D", Type: types.NodeTypeGenerate},
		},
		Edges: []types.Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "C"},
			{Source: "C", Target: "D"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"query": "foo"}),
		"B": completed("B", map[string]interface{}{"embedding": []interface{}{0.1, 0.2}}),
		"C": completed("C", map[string]interface{}{"results": []interface{}{
			map[string]interface{}{"text": "x", "score": 0.9},
			map[string]interface{}{"text": "y", "score": 0.7},
		}}),
	}

	c := New(formatter.New())
	memo := NewMemo()

	// B receives the query text from its direct source.
	inputs, err := c.Collect(g.GetNode("B"), g, results, memo)
	if err != nil {
		t.Fatalf("collect B failed: %v", err)
	}
	if inputs["text"] != "foo" {
		t.Errorf("expected B text %q, got %v", "foo", inputs["text"])
	}

	// C receives the embedding directly and the query from its ancestor.
	inputs, err = c.Collect(g.GetNode("C"), g, results, memo)
	if err != nil {
		t.Fatalf("collect C failed: %v", err)
	}
	if inputs["query"] != "foo" {
		t.Errorf("expected C query from indirect ancestor, got %v", inputs["query"])
	}
	if _, ok := inputs["embedding"]; !ok {
		t.Error("expected embedding passed through to C")
	}

	// D receives the rendered context, verbatim results, and the query.
	inputs, err = c.Collect(g.GetNode("D"), g, results, memo)
	if err != nil {
		t.Fatalf("collect D failed: %v", err)
	}
	if inputs["query"] != "foo" {
		t.Errorf("expected D query %q, got %v", "foo", inputs["query"])
	}
	if inputs["context"] != "[1] x\n\n[2] y" {
		t.Errorf("unexpected rendered context: %q", inputs["context"])
	}
	resultsList, ok := inputs["results"].([]interface{})
	if !ok || len(resultsList) != 2 {
		t.Errorf("expected verbatim results list, got %v", inputs["results"])
	}
}

func TestCollectDiamondLastDirectWriterWins(t *testing.T) {
	wf := &types.Workflow{
		ID: "diamond",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeTextInput},
			{ID: "D", Type: "topic_node"},
		},
		Edges: []types.Edge{
			{Source: "A", Target: "D"},
			{Source: "B", Target: "D"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"text": "hello"}),
		"B": completed("B", map[string]interface{}{"text": "world"}),
	}

	mappings := map[types.NodeType][]FieldRule{
		"topic_node": {{Target: "topic", Sources: []string{"text"}}},
	}
	c := New(formatter.New(), WithMappings(mappings))

	inputs, err := c.Collect(g.GetNode("D"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if inputs["topic"] != "world" {
		t.Errorf("expected last direct writer to win, got %v", inputs["topic"])
	}
	if inputs["A_topic"] != "hello" {
		t.Errorf("expected A_topic alias %q, got %v", "hello", inputs["A_topic"])
	}
	if inputs["B_topic"] != "world" {
		t.Errorf("expected B_topic alias %q, got %v", "world", inputs["B_topic"])
	}
}

func TestCollectDirectWinsOverIndirect(t *testing.T) {
	// A -> B -> C: B is C's direct source and A an indirect ancestor; both
	// produce text. The direct write must own the field.
	wf := &types.Workflow{
		ID: "direct-wins",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeTextInput},
			{ID: "C", Type: "topic_node"},
		},
		Edges: []types.Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "C"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"text": "from-A"}),
		"B": completed("B", map[string]interface{}{"text": "from-B"}),
	}

	mappings := map[types.NodeType][]FieldRule{
		"topic_node": {{Target: "topic", Sources: []string{"text"}}},
	}
	c := New(formatter.New(), WithMappings(mappings))

	inputs, err := c.Collect(g.GetNode("C"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if inputs["topic"] != "from-B" {
		t.Errorf("direct source must win: expected from-B, got %v", inputs["topic"])
	}
}

func TestCollectIndirectClosestAncestorWins(t *testing.T) {
	// far -> near -> mid -> target: both far and near produce text; only mid
	// is direct and produces nothing useful. The closer ancestor wins.
	wf := &types.Workflow{
		ID: "indirect",
		Nodes: []types.Node{
			{ID: "far", Type: types.NodeTypeTextInput},
			{ID: "near", Type: types.NodeTypeTextInput},
			{ID: "mid", Type: "relay"},
			{ID: "target", Type: "topic_node"},
		},
		Edges: []types.Edge{
			{Source: "far", Target: "near"},
			{Source: "near", Target: "mid"},
			{Source: "mid", Target: "target"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"far":  completed("far", map[string]interface{}{"text": "far-text"}),
		"near": completed("near", map[string]interface{}{"text": "near-text"}),
		"mid":  completed("mid", map[string]interface{}{"relayed": true}),
	}

	mappings := map[types.NodeType][]FieldRule{
		"topic_node": {{Target: "topic", Sources: []string{"text"}}},
		"relay":      {},
	}
	c := New(formatter.New(), WithMappings(mappings))

	inputs, err := c.Collect(g.GetNode("target"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if inputs["topic"] != "near-text" {
		t.Errorf("expected closest ancestor to win, got %v", inputs["topic"])
	}
}

func TestCollectHandleRouting(t *testing.T) {
	wf := &types.Workflow{
		ID: "handles",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeGenerate},
		},
		Edges: []types.Edge{
			{Source: "A", Target: "B", SourceHandle: strPtr("question"), TargetHandle: strPtr("query")},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{
			"question": "routed",
			"text":     "not routed",
		}),
	}

	c := New(formatter.New())
	inputs, err := c.Collect(g.GetNode("B"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if inputs["query"] != "routed" {
		t.Errorf("expected handle-routed value, got %v", inputs["query"])
	}
	// The handle binding suppresses heuristic mapping for that edge, so the
	// text field must not leak in.
	if _, ok := inputs["text"]; ok {
		t.Error("heuristic mapping should be suppressed on handle-labeled edges")
	}
}

func TestCollectListConcatenationWithProvenance(t *testing.T) {
	wf := &types.Workflow{
		ID: "merge",
		Nodes: []types.Node{
			{ID: "r1", Type: types.NodeTypeRetrieve},
			{ID: "r2", Type: types.NodeTypeRetrieve},
			{ID: "gen", Type: types.NodeTypeGenerate},
		},
		Edges: []types.Edge{
			{Source: "r1", Target: "gen"},
			{Source: "r2", Target: "gen"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"r1": completed("r1", map[string]interface{}{"results": []interface{}{
			map[string]interface{}{"text": "one"},
		}}),
		"r2": completed("r2", map[string]interface{}{"results": []interface{}{
			map[string]interface{}{"text": "two"},
		}}),
	}

	c := New(formatter.New())
	inputs, err := c.Collect(g.GetNode("gen"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	merged, ok := inputs["results"].([]interface{})
	if !ok || len(merged) != 2 {
		t.Fatalf("expected concatenated results, got %v", inputs["results"])
	}
	first := merged[0].(map[string]interface{})
	if first["text"] != "one" {
		t.Errorf("expected edge-order concatenation, got %v first", first["text"])
	}

	prov, ok := inputs[ProvenanceKey].([]interface{})
	if !ok || len(prov) != 2 {
		t.Fatalf("expected provenance for merged list, got %v", inputs[ProvenanceKey])
	}
	entry := prov[0].(map[string]interface{})
	if entry["source_id"] != "r1" || entry["field"] != "results" {
		t.Errorf("unexpected provenance entry: %v", entry)
	}
}

func TestCollectMissingRequiredInput(t *testing.T) {
	wf := &types.Workflow{
		ID: "fail",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeEmbed},
		},
		Edges: []types.Edge{{Source: "A", Target: "B"}},
	}
	g := graph.New(wf)

	tests := []struct {
		name   string
		result *types.NodeResult
	}{
		{name: "failed direct source", result: failed("A")},
		{name: "skipped direct source", result: &types.NodeResult{NodeID: "A", Status: types.NodeStatusSkipped}},
		{name: "absent direct source", result: nil},
	}

	c := New(formatter.New())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := map[string]*types.NodeResult{}
			if tt.result != nil {
				results["A"] = tt.result
			}
			_, err := c.Collect(g.GetNode("B"), g, results, NewMemo())
			if !errors.Is(err, ErrMissingRequiredInput) {
				t.Fatalf("expected ErrMissingRequiredInput, got %v", err)
			}
		})
	}
}

func TestCollectFailedIndirectSourceDoesNotBlock(t *testing.T) {
	// bad -> mid -> target: the failed ancestor is indirect; target's only
	// direct source completed, so collection proceeds.
	wf := &types.Workflow{
		ID: "partial",
		Nodes: []types.Node{
			{ID: "bad", Type: types.NodeTypeTextInput},
			{ID: "mid", Type: types.NodeTypeTextInput},
			{ID: "target", Type: "topic_node"},
		},
		Edges: []types.Edge{
			{Source: "bad", Target: "mid"},
			{Source: "mid", Target: "target"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"bad": failed("bad"),
		"mid": completed("mid", map[string]interface{}{"text": "ok"}),
	}

	mappings := map[types.NodeType][]FieldRule{
		"topic_node": {{Target: "topic", Sources: []string{"text"}}},
	}
	c := New(formatter.New(), WithMappings(mappings))

	inputs, err := c.Collect(g.GetNode("target"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("expected collection to proceed, got %v", err)
	}
	if inputs["topic"] != "ok" {
		t.Errorf("expected topic from completed direct source, got %v", inputs["topic"])
	}
}

func TestCollectIntelligentRouting(t *testing.T) {
	wf := &types.Workflow{
		ID: "routing",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeEmbed},
		},
		Edges: []types.Edge{{Source: "A", Target: "B"}},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"text": "hello"}),
	}

	c := New(formatter.New(), WithIntelligentRouting(true))
	inputs, err := c.Collect(g.GetNode("B"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	// The namespaced channel is additive: the heuristic write stays.
	if inputs["text"] != "hello" {
		t.Errorf("heuristic write must survive intelligent routing, got %v", inputs["text"])
	}
	if inputs["A.text"] != "hello" {
		t.Errorf("expected namespaced A.text, got %v", inputs["A.text"])
	}
}

func TestCollectFormatterMemoized(t *testing.T) {
	wf := &types.Workflow{
		ID: "memo",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: types.NodeTypeEmbed},
			{ID: "C", Type: types.NodeTypeEmbed},
		},
		Edges: []types.Edge{
			{Source: "A", Target: "B"},
			{Source: "A", Target: "C"},
		},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"response": "hi"}),
	}

	calls := 0
	formatters := formatter.New()
	formatters.Register(types.NodeTypeTextInput, func(raw map[string]interface{}) map[string]interface{} {
		calls++
		return map[string]interface{}{"text": raw["response"]}
	})

	c := New(formatters)
	memo := NewMemo()
	for _, target := range []string{"B", "C"} {
		inputs, err := c.Collect(g.GetNode(target), g, results, memo)
		if err != nil {
			t.Fatalf("collect %s failed: %v", target, err)
		}
		if inputs["text"] != "hi" {
			t.Errorf("expected canonicalized text for %s, got %v", target, inputs["text"])
		}
	}
	if calls != 1 {
		t.Errorf("expected formatter to run once per upstream result, ran %d times", calls)
	}
}

func TestCollectGenericMergeForUnmappedType(t *testing.T) {
	wf := &types.Workflow{
		ID: "generic",
		Nodes: []types.Node{
			{ID: "A", Type: types.NodeTypeTextInput},
			{ID: "B", Type: "custom_sink"},
		},
		Edges: []types.Edge{{Source: "A", Target: "B"}},
	}
	g := graph.New(wf)
	results := map[string]*types.NodeResult{
		"A": completed("A", map[string]interface{}{"text": "hi", "lang": "en"}),
	}

	c := New(formatter.New())
	inputs, err := c.Collect(g.GetNode("B"), g, results, NewMemo())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	want := map[string]interface{}{
		"text": "hi", "lang": "en",
		"A_text": "hi", "A_lang": "en",
	}
	if !reflect.DeepEqual(inputs, want) {
		t.Errorf("expected generic merge %v, got %v", want, inputs)
	}
}

func TestWrapInList(t *testing.T) {
	wrapped := WrapInList("doc", nil)
	list, ok := wrapped.([]interface{})
	if !ok || len(list) != 1 || list[0] != "doc" {
		t.Errorf("expected single-element list, got %v", wrapped)
	}

	passthrough := WrapInList([]interface{}{"a", "b"}, nil)
	if list, ok := passthrough.([]interface{}); !ok || len(list) != 2 {
		t.Errorf("expected list passthrough, got %v", passthrough)
	}
}

func TestRenderChunks(t *testing.T) {
	rendered := RenderChunks([]interface{}{
		map[string]interface{}{"text": "x", "score": 0.9},
		"bare string",
	}, nil)
	if rendered != "[1] x\n\n[2] bare string" {
		t.Errorf("unexpected rendering: %q", rendered)
	}
}
