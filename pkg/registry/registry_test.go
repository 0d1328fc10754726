package registry

import (
	"context"
	"testing"

	"github.com/mettice/nodeai/pkg/types"
)

type stubHandler struct {
	typ    types.NodeType
	meta   Metadata
	input  map[string]interface{}
	output map[string]interface{}
}

func (h *stubHandler) NodeType() types.NodeType { return h.typ }

func (h *stubHandler) Execute(ctx context.Context, inputs, config map[string]interface{}, nc NodeContext) (map[string]interface{}, error) {
	return map[string]interface{}{"ok": true}, nil
}

func (h *stubHandler) InputSchema() map[string]interface{}  { return h.input }
func (h *stubHandler) OutputSchema() map[string]interface{} { return h.output }
func (h *stubHandler) Metadata() Metadata                   { return h.meta }

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	h := &stubHandler{typ: types.NodeTypeGenerate}

	if err := r.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !r.Has(types.NodeTypeGenerate) {
		t.Error("expected handler registered")
	}
	if r.Get(types.NodeTypeGenerate) != h {
		t.Error("expected lookup to return the registered handler")
	}
	if r.Get("unknown") != nil {
		t.Error("expected nil for unknown type")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	r.MustRegister(&stubHandler{typ: types.NodeTypeGenerate})

	if err := r.Register(&stubHandler{typ: types.NodeTypeGenerate}); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate MustRegister")
		}
	}()
	r := New()
	r.MustRegister(&stubHandler{typ: types.NodeTypeGenerate})
	r.MustRegister(&stubHandler{typ: types.NodeTypeGenerate})
}

func TestStepType(t *testing.T) {
	r := New()
	r.MustRegister(&stubHandler{
		typ:  types.NodeTypeGenerate,
		meta: Metadata{RetrievalPattern: true, StepType: types.StepTypeGenerate},
	})
	r.MustRegister(&stubHandler{
		typ:  types.NodeTypeToolCall,
		meta: Metadata{RetrievalPattern: true},
	})
	r.MustRegister(&stubHandler{typ: "plain"})

	if step, ok := r.StepType(types.NodeTypeGenerate); !ok || step != types.StepTypeGenerate {
		t.Errorf("expected generate step, got %v %v", step, ok)
	}
	// Retrieval-pattern without a hint maps to other.
	if step, ok := r.StepType(types.NodeTypeToolCall); !ok || step != types.StepTypeOther {
		t.Errorf("expected other step, got %v %v", step, ok)
	}
	if _, ok := r.StepType("plain"); ok {
		t.Error("non-retrieval node must not produce a step type")
	}
	if _, ok := r.StepType("unregistered"); ok {
		t.Error("unknown node must not produce a step type")
	}
}

func TestCheckInputs(t *testing.T) {
	withSchema := &stubHandler{
		typ: types.NodeTypeGenerate,
		input: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"query"},
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
		},
	}

	if err := CheckInputs(withSchema, map[string]interface{}{"query": "hi"}); err != nil {
		t.Errorf("expected matching inputs to pass, got %v", err)
	}
	if err := CheckInputs(withSchema, map[string]interface{}{}); err == nil {
		t.Error("expected missing required field to report")
	}

	noSchema := &stubHandler{typ: types.NodeTypeToolCall}
	if err := CheckInputs(noSchema, nil); err != nil {
		t.Errorf("expected handlers without schema to pass, got %v", err)
	}
}
