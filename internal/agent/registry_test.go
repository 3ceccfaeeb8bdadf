package agent

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

// stubTool is a scriptable capability for tests across this package.
type stubTool struct {
	name       string
	desc       string
	schema     string
	idempotent bool
	execute    func(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.desc }

func (s *stubTool) Schema() json.RawMessage {
	if s.schema == "" {
		return json.RawMessage(`{"type": "object"}`)
	}
	return json.RawMessage(s.schema)
}

func (s *stubTool) Idempotent() bool { return s.idempotent }

func (s *stubTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	if s.execute != nil {
		return s.execute(ctx, input)
	}
	return &ToolResult{Content: "ok"}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Get("echo"); !ok {
		t.Error("registered tool not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unregistered tool reported as found")
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&stubTool{name: "echo"}); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: ""}); err == nil {
		t.Error("empty name should fail")
	}
}

func TestRegistry_RejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&stubTool{name: "broken", schema: `{"type": ["not a type"]}`})
	if err == nil {
		t.Error("uncompilable schema should fail at registration")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_Specs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "echo", desc: "echoes input"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	specs := r.Specs()
	if len(specs) != 1 {
		t.Fatalf("got %d specs, want 1", len(specs))
	}
	if specs[0].Name != "echo" || specs[0].Description != "echoes input" {
		t.Errorf("unexpected spec: %+v", specs[0])
	}
	if len(specs[0].Schema) == 0 {
		t.Error("spec should carry the schema")
	}
}

func TestRegistry_IsIdempotent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "pure", idempotent: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&stubTool{name: "effectful"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.IsIdempotent("pure") {
		t.Error("pure should be idempotent")
	}
	if r.IsIdempotent("effectful") {
		t.Error("effectful should not be idempotent")
	}
	if r.IsIdempotent("missing") {
		t.Error("unknown capability should not be idempotent")
	}
}

func TestRegistry_ExecuteUnknownCapability(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unknown capability should fold into the result, got error %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown capability should produce an error result")
	}
	if !strings.Contains(result.Content, "missing") || !strings.Contains(result.Content, "echo") {
		t.Errorf("error should name the request and the available capabilities: %q", result.Content)
	}
}

func TestRegistry_ExecuteValidatesInput(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{
		name: "search",
		schema: `{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`,
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Execute(context.Background(), "search", json.RawMessage(`{"wrong": 1}`))
	if err != nil {
		t.Fatalf("validation failure should fold into the result, got error %v", err)
	}
	if !result.IsError {
		t.Error("missing required field should produce an error result")
	}

	result, err = r.Execute(context.Background(), "search", json.RawMessage(`{"query": "x"}`))
	if err != nil || result.IsError {
		t.Errorf("valid input should execute: result=%+v err=%v", result, err)
	}
}

func TestRegistry_ExecuteRejectsOversizedInput(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	big := make(json.RawMessage, maxInputSize+1)
	result, err := r.Execute(context.Background(), "echo", big)
	if err != nil {
		t.Fatalf("oversized input should fold into the result, got error %v", err)
	}
	if !result.IsError {
		t.Error("oversized input should produce an error result")
	}
}
