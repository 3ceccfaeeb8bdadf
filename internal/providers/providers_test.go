package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/pkg/models"
)

func TestNewAnthropicInvoker_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicInvoker(AnthropicConfig{}); err == nil {
		t.Error("missing API key should be rejected")
	}
}

func TestNewOpenAIInvoker_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIInvoker(OpenAIConfig{}); err == nil {
		t.Error("missing API key should be rejected")
	}
}

func TestNewOpenAIInvoker_Defaults(t *testing.T) {
	invoker, err := NewOpenAIInvoker(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if invoker.maxRetries != 3 || invoker.defaultModel != "gpt-4o" {
		t.Errorf("defaults not applied: retries=%d model=%q", invoker.maxRetries, invoker.defaultModel)
	}
}

// anthropicErr builds an *anthropic.Error with the non-nil Request/Response
// that its Error() method dereferences.
func anthropicErr(status int) *anthropic.Error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    &http.Request{Method: http.MethodPost, URL: &url.URL{}},
		Response:   &http.Response{StatusCode: status},
	}
}

func assertCategory(t *testing.T, err error, want agent.ModelErrorCategory) {
	t.Helper()
	var modelErr *agent.ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected *agent.ModelError, got %T: %v", err, err)
	}
	if modelErr.Category != want {
		t.Errorf("category = %v, want %v", modelErr.Category, want)
	}
}

func TestWrapAnthropicError_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   agent.ModelErrorCategory
	}{
		{401, agent.ModelErrorAuth},
		{403, agent.ModelErrorAuth},
		{408, agent.ModelErrorTimeout},
		{504, agent.ModelErrorTimeout},
		{502, agent.ModelErrorConnectivity},
		{503, agent.ModelErrorConnectivity},
		{500, agent.ModelErrorGeneric},
	}
	for _, tt := range tests {
		err := wrapAnthropicError(anthropicErr(tt.status))
		assertCategory(t, err, tt.want)
	}
}

func TestWrapAnthropicError_DeadlineExceeded(t *testing.T) {
	err := wrapAnthropicError(fmt.Errorf("request failed: %w", context.DeadlineExceeded))
	assertCategory(t, err, agent.ModelErrorTimeout)
}

func TestWrapAnthropicError_Nil(t *testing.T) {
	if wrapAnthropicError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{anthropicErr(429), true},
		{anthropicErr(503), true},
		{anthropicErr(400), false},
		{errors.New("too many requests"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("client timeout exceeded"), true},
		{errors.New("invalid request body"), false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}

func TestWrapOpenAIError_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   agent.ModelErrorCategory
	}{
		{401, agent.ModelErrorAuth},
		{408, agent.ModelErrorTimeout},
		{503, agent.ModelErrorConnectivity},
		{400, agent.ModelErrorGeneric},
	}
	for _, tt := range tests {
		err := wrapOpenAIError(&openai.APIError{HTTPStatusCode: tt.status})
		assertCategory(t, err, tt.want)
	}
}

func TestIsOpenAIRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{&openai.APIError{HTTPStatusCode: 429}, true},
		{&openai.APIError{HTTPStatusCode: 401}, false},
		{errors.New("rate limit reached"), true},
		{errors.New("bad request"), false},
	}
	for _, tt := range tests {
		if got := isOpenAIRetryable(tt.err); got != tt.want {
			t.Errorf("isOpenAIRetryable(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "web_search", Input: json.RawMessage(`{"query":"go"}`)},
		}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "call-1", Content: "found it"},
		}},
	}

	got := convertToOpenAIMessages(window, "be helpful")
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem || got[0].Content != "be helpful" {
		t.Errorf("system prompt should lead: %+v", got[0])
	}
	if got[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("message 1 role = %q", got[1].Role)
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("tool call not carried: %+v", got[2])
	}
	if got[3].Role != openai.ChatMessageRoleTool || got[3].ToolCallID != "call-1" {
		t.Errorf("tool result message wrong: %+v", got[3])
	}
}

func TestConvertToOpenAIMessages_NoSystemPrompt(t *testing.T) {
	got := convertToOpenAIMessages([]models.Message{{Role: models.RoleUser, Content: "hi"}}, "")
	if len(got) != 1 || got[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("unexpected messages: %+v", got)
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	specs := []agent.CapabilitySpec{
		{Name: "web_search", Description: "search", Schema: json.RawMessage(`{"type":"object"}`)},
	}
	got := convertToOpenAITools(specs)
	if len(got) != 1 {
		t.Fatalf("got %d tools, want 1", len(got))
	}
	if got[0].Type != openai.ToolTypeFunction || got[0].Function.Name != "web_search" {
		t.Errorf("unexpected tool: %+v", got[0])
	}
}

func TestConvertToAnthropicMessages_SkipsSystemAndEmpty(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleSystem, Content: "rules"},
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: ""},
	}
	got, err := convertToAnthropicMessages(window)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// The system message travels out of band and the empty assistant
	// message has no content blocks.
	if len(got) != 1 {
		t.Errorf("got %d messages, want 1", len(got))
	}
}

func TestConvertToAnthropicMessages_RejectsBadToolInput(t *testing.T) {
	window := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "web_search", Input: json.RawMessage(`{broken`)},
		}},
	}
	if _, err := convertToAnthropicMessages(window); err == nil {
		t.Error("malformed tool input should be rejected")
	}
}
