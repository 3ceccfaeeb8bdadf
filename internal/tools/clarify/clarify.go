// Package clarify provides the clarify_communication capability: it asks
// the model to translate or explain text the user did not understand.
// The capability is idempotent, so repeating it in a turn is harmless.
package clarify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/pkg/models"
)

const clarificationPrompt = `You are a translation and communication clarification assistant.

Text to clarify: %q
Source language: %s
Target language: %s
Context: %s

Provide immediately:
1. Direct translation to the target language (if foreign language detected)
2. Clear explanation of what was meant
3. Cultural context if relevant
4. Clarification of any ambiguity

Start with the translation or clarification directly. Be concise and clear.`

type params struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Context        string `json:"context,omitempty"`
}

// Tool implements the clarify_communication capability by delegating to
// a model invoker.
type Tool struct {
	invoker agent.ModelInvoker
	model   string
}

// New creates the clarification tool. model may be empty to use the
// invoker's default.
func New(invoker agent.ModelInvoker, model string) *Tool {
	return &Tool{invoker: invoker, model: model}
}

func (t *Tool) Name() string {
	return "clarify_communication"
}

func (t *Tool) Description() string {
	return "Translate foreign language text, explain phrases or cultural context, and clear up misunderstandings between users."
}

// Idempotent marks the capability as safe to repeat: clarifying the same
// text twice returns the same explanation without side effects.
func (t *Tool) Idempotent() bool {
	return true
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {
				"type": "string",
				"description": "The text that needs clarification or translation"
			},
			"source_language": {
				"type": "string",
				"description": "Source language if known"
			},
			"target_language": {
				"type": "string",
				"description": "Target language (default: English)"
			},
			"context": {
				"type": "string",
				"description": "Additional context about the conversation"
			}
		},
		"required": ["text"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var p params
	if err := json.Unmarshal(input, &p); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if p.Text == "" {
		return &agent.ToolResult{Content: "Text is required", IsError: true}, nil
	}
	if p.SourceLanguage == "" {
		p.SourceLanguage = "Auto-detect"
	}
	if p.TargetLanguage == "" {
		p.TargetLanguage = "English"
	}
	if p.Context == "" {
		p.Context = "General conversation"
	}

	prompt := fmt.Sprintf(clarificationPrompt,
		p.Text, p.SourceLanguage, p.TargetLanguage, p.Context)

	resp, err := t.invoker.Invoke(ctx, &agent.InvokeRequest{
		Model: t.model,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Error clarifying communication: %v", err),
			IsError: true,
		}, nil
	}

	result := map[string]any{
		"original_text":        p.Text,
		"has_foreign_language": hasForeignChars(p.Text),
		"clarification":        resp.Content,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to encode result: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{Content: string(data)}, nil
}

// hasForeignChars reports whether the text contains non-ASCII runes,
// a cheap signal that translation may be needed.
func hasForeignChars(text string) bool {
	for _, r := range text {
		if r > 127 {
			return true
		}
	}
	return false
}
