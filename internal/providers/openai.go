package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/pkg/models"
)

// OpenAIInvoker implements agent.ModelInvoker against OpenAI's chat
// completions API. Unlike Anthropic, the system prompt rides in the
// message array and tool results are separate messages, one per call.
type OpenAIInvoker struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// OpenAIConfig holds configuration for creating an OpenAIInvoker.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewOpenAIInvoker creates an OpenAI-backed invoker.
func NewOpenAIInvoker(config OpenAIConfig) (*OpenAIInvoker, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIInvoker{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *OpenAIInvoker) Name() string {
	return "openai"
}

// Models returns the model IDs this invoker accepts.
func (p *OpenAIInvoker) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

// Invoke sends one chat completion request and returns the complete
// assistant message.
func (p *OpenAIInvoker) Invoke(ctx context.Context, req *agent.InvokeRequest) (*models.Message, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertToOpenAIMessages(req.Messages, req.SystemPrompt),
	}
	if chatReq.Model == "" {
		chatReq.Model = p.defaultModel
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if len(req.Capabilities) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Capabilities)
	}

	var resp openai.ChatCompletionResponse
	var err error

	// Linear backoff: 1s, 2s, 3s between attempts.
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapOpenAIError(ctx.Err())
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		if !isOpenAIRetryable(err) {
			return nil, wrapOpenAIError(err)
		}
	}
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, agent.NewModelError(errors.New("openai: response contained no choices"))
	}

	choice := resp.Choices[0].Message
	msg := &models.Message{
		Role:    models.RoleAssistant,
		Content: choice.Content,
		Metadata: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg, nil
}

// convertToOpenAIMessages translates the conversation window into OpenAI's
// format. The system prompt becomes the leading system message; any system
// messages already in the window are passed through as-is.
func convertToOpenAIMessages(messages []models.Message, systemPrompt string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage

	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		case models.RoleAssistant:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, out)

		case models.RoleTool:
			// One tool message per result, correlated by call ID.
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result
}

func convertToOpenAITools(specs []agent.CapabilitySpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		})
	}
	return tools
}

// wrapOpenAIError maps an SDK failure into the model error taxonomy.
func wrapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
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

func isOpenAIRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "429")
}
