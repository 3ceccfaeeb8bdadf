package agent

import (
	"strings"
	"testing"

	"github.com/mentorly/mentor/pkg/models"
)

func TestIsDegenerate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"\n\t\n", true},
		{"```", true},
		{"`", true},
		{"``````", true},
		{"```\n```", true},
		{"```go\n```", true},
		{"hello", false},
		{"```go\nfmt.Println()\n```", false},
		{"`code`", false},
		{"a", false},
	}
	for _, tt := range tests {
		if got := IsDegenerate(tt.text); got != tt.want {
			t.Errorf("IsDegenerate(%q) = %t, want %t", tt.text, got, tt.want)
		}
	}
}

func TestRecover_SynthesizesFromToolResult(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleUser, Content: "what's the weather?"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "weather"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Name: "weather", Content: `{"temp": 20, "condition": "Sunny"}`},
		}},
	}

	got := Recover(window)
	if !strings.HasPrefix(got, "Based on the weather results:\n\n") {
		t.Errorf("missing synthesis prefix: %q", got)
	}
	if !strings.Contains(got, "20") {
		t.Errorf("synthesized reply should carry the result data: %q", got)
	}
}

func TestRecover_ApologyWithoutToolResults(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	got := Recover(window)
	if got != fallbackApology {
		t.Errorf("Recover() = %q, want apology", got)
	}
}

func TestRecover_EmptyWindow(t *testing.T) {
	if got := Recover(nil); got != fallbackApology {
		t.Errorf("Recover(nil) = %q, want apology", got)
	}
}

func TestRecover_LookBackBounded(t *testing.T) {
	// The tool result sits four messages back, one past the look-back.
	window := []models.Message{
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Name: "weather", Content: "sunny"},
		}},
		{Role: models.RoleAssistant, Content: "it is sunny"},
		{Role: models.RoleUser, Content: "thanks"},
		{Role: models.RoleAssistant, Content: "welcome"},
	}
	if got := Recover(window); got != fallbackApology {
		t.Errorf("look-back should stop after %d messages, got %q", fallbackLookBack, got)
	}
}

func TestRecover_SkipsErrorResults(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Name: "weather", Content: "boom", IsError: true},
		}},
	}
	if got := Recover(window); got != fallbackApology {
		t.Errorf("error results should not be synthesized from, got %q", got)
	}
}

func TestRecover_PrefersLastSuccessInMessage(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Name: "first", Content: "older"},
			{ToolCallID: "c2", Name: "second", Content: "newer"},
			{ToolCallID: "c3", Name: "third", Content: "failed", IsError: true},
		}},
	}
	got := Recover(window)
	if !strings.Contains(got, "second") || !strings.Contains(got, "newer") {
		t.Errorf("should synthesize from the last successful result: %q", got)
	}
}

func TestRecover_UnnamedResult(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Content: "some data"},
		}},
	}
	got := Recover(window)
	if !strings.HasPrefix(got, "Based on the tool results:") {
		t.Errorf("unnamed results should fall back to a generic label: %q", got)
	}
}
