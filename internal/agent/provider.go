package agent

import (
	"context"
	"encoding/json"

	"github.com/mentorly/mentor/pkg/models"
)

// Tool is a capability the model may request during a turn. Schema returns
// a JSON Schema document describing the expected input; arguments are
// validated against it before Execute runs.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// Idempotent is an optional interface for tools whose repeated execution
// with identical arguments is harmless. Such tools are exempt from
// duplicate blocking.
type Idempotent interface {
	Idempotent() bool
}

// ToolResult is the outcome of a single capability execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// CapabilitySpec describes one capability to the model invoker.
type CapabilitySpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// InvokeRequest carries everything a model invoker needs for one
// inference: the system prompt, the conversation window, and the
// capabilities the model may request.
type InvokeRequest struct {
	Model        string
	SystemPrompt string
	Messages     []models.Message
	Capabilities []CapabilitySpec
	MaxTokens    int
	Temperature  float32
}

// ModelInvoker produces one assistant message per invocation. The returned
// message contains text, tool calls, or both. Implementations map provider
// failures to *ModelError and honor context cancellation.
type ModelInvoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*models.Message, error)
	Name() string
	Models() []string
}
