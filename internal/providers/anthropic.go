// Package providers implements model invoker integrations for the Mentor
// turn loop.
//
// Each provider converts between the internal message format and its SDK's
// wire types, retries transient failures with backoff, and maps API errors
// into the agent.ModelError taxonomy so the turn loop can end with a stable
// user-facing message while the raw cause stays in logs.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/pkg/models"
)

// AnthropicInvoker implements agent.ModelInvoker against Anthropic's
// Messages API. Safe for concurrent use; each Invoke call is independent.
type AnthropicInvoker struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig holds configuration for creating an AnthropicInvoker.
// All fields except APIKey are optional.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// MaxRetries sets retry attempts for transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between retries; actual delay uses
	// exponential backoff. Default: 1 second.
	RetryDelay time.Duration

	// DefaultModel is used when InvokeRequest.Model is empty.
	DefaultModel string
}

// NewAnthropicInvoker creates an Anthropic-backed invoker, applying
// defaults for unset optional fields.
func NewAnthropicInvoker(config AnthropicConfig) (*AnthropicInvoker, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicInvoker{
		client:       anthropic.NewClient(options...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *AnthropicInvoker) Name() string {
	return "anthropic"
}

// Models returns the model IDs this invoker accepts.
func (p *AnthropicInvoker) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-haiku-20240307",
	}
}

// Invoke sends one inference request and returns the complete assistant
// message, including any capability requests the model made.
func (p *AnthropicInvoker) Invoke(ctx context.Context, req *agent.InvokeRequest) (*models.Message, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, agent.NewModelError(err)
	}

	var resp *anthropic.Message
	for attempt := 0; ; attempt++ {
		resp, err = p.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if attempt >= p.maxRetries || !isRetryable(err) {
			return nil, wrapAnthropicError(err)
		}

		// Exponential backoff: delay = baseDelay * 2^attempt.
		backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, wrapAnthropicError(ctx.Err())
		case <-time.After(backoff):
		}
	}

	return convertResponse(resp)
}

func (p *AnthropicInvoker) buildParams(req *agent.InvokeRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertToAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	// The system prompt is carried separately from the message array.
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	if len(req.Capabilities) > 0 {
		tools, err := convertToAnthropicTools(req.Capabilities)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// convertToAnthropicMessages translates the conversation window into
// Anthropic's content-block message format. System messages are skipped
// here; they travel in params.System instead.
func convertToAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				tr.ToolCallID, tr.Content, tr.IsError))
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both map to user messages.
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func convertToAnthropicTools(specs []agent.CapabilitySpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", spec.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", spec.Name)
		}
		toolParam.OfTool.Description = anthropic.String(spec.Description)

		result = append(result, toolParam)
	}

	return result, nil
}

// convertResponse folds the response content blocks into a single
// assistant message: text blocks concatenate, tool_use blocks become
// tool calls in request order.
func convertResponse(resp *anthropic.Message) (*models.Message, error) {
	var text strings.Builder
	var toolCalls []models.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			input, err := json.Marshal(toolUse.Input)
			if err != nil {
				return nil, agent.NewModelError(fmt.Errorf("anthropic: invalid tool input for %s: %w", toolUse.Name, err))
			}
			toolCalls = append(toolCalls, models.ToolCall{
				ID:    toolUse.ID,
				Name:  toolUse.Name,
				Input: input,
			})
		}
	}

	return &models.Message{
		Role:      models.RoleAssistant,
		Content:   text.String(),
		ToolCalls: toolCalls,
		Metadata: map[string]any{
			"prompt_tokens":     int(resp.Usage.InputTokens),
			"completion_tokens": int(resp.Usage.OutputTokens),
		},
	}, nil
}

// wrapAnthropicError maps an SDK failure into the model error taxonomy.
// Status codes take precedence over message matching.
func wrapAnthropicError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &agent.ModelError{Category: agent.ModelErrorAuth, Cause: err}
		case 408, 504:
			return &agent.ModelError{Category: agent.ModelErrorTimeout, Cause: err}
		case 502, 503:
			return &agent.ModelError{Category: agent.ModelErrorConnectivity, Cause: err}
		}
		return agent.NewModelError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &agent.ModelError{Category: agent.ModelErrorTimeout, Cause: err}
	}

	return agent.NewModelError(err)
}

// isRetryable reports whether a request-level failure is worth retrying:
// rate limits, server errors, timeouts, and connection problems.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "rate_limit") ||
		strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "too many requests") {
		return true
	}

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return true
	}

	if strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") {
		return true
	}

	return false
}
