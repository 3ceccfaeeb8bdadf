// Package recall provides the recall_last_conversation capability: it
// returns the most recent exchanges from a user's conversation history so
// the model can reference earlier context.
package recall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/internal/sessions"
	"github.com/mentorly/mentor/pkg/models"
)

// defaultLimit keeps recalled context manageable.
const defaultLimit = 5

const maxLimit = 20

type params struct {
	UserID  string `json:"user_id"`
	Session string `json:"session,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool implements the recall_last_conversation capability over the
// session store.
type Tool struct {
	store sessions.Store
}

// New creates the recall tool.
func New(store sessions.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "recall_last_conversation"
}

func (t *Tool) Description() string {
	return "Recall the most recent messages from the user's conversation history. Use this when the user asks about previous conversations or earlier context."
}

// Idempotent marks the capability as safe to repeat: recalling history is
// read-only.
func (t *Tool) Idempotent() bool {
	return true
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {
				"type": "string",
				"description": "The ID of the user whose conversation to retrieve"
			},
			"session": {
				"type": "string",
				"description": "Thread name within the user's sessions (default: default)"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of messages to return (default: 5)",
				"minimum": 1,
				"maximum": 20
			}
		},
		"required": ["user_id"]
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
	if p.UserID == "" {
		return &agent.ToolResult{Content: "user_id is required", IsError: true}, nil
	}
	if p.Session == "" {
		p.Session = "default"
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	session, err := t.store.GetByKey(ctx, sessions.SessionKey(p.UserID, p.Session))
	if errors.Is(err, sessions.ErrNotFound) {
		return emptyResult()
	}
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to retrieve conversation: %v", err),
			IsError: true,
		}, nil
	}

	msgs, err := t.store.GetHistory(ctx, session.ID, 0)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to retrieve conversation: %v", err),
			IsError: true,
		}, nil
	}

	// Only the spoken exchange matters for recall; tool traffic and the
	// tool-call carrier messages stay out.
	var entries []entry
	for _, msg := range msgs {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		if msg.Content == "" {
			continue
		}
		entries = append(entries, entry{Role: string(msg.Role), Content: msg.Content})
	}
	if len(entries) == 0 {
		return emptyResult()
	}

	total := len(entries)
	if len(entries) > p.Limit {
		entries = entries[len(entries)-p.Limit:]
	}

	return jsonResult(map[string]any{
		"status":         "success",
		"message":        "Conversation retrieved successfully",
		"data":           entries,
		"total_messages": total,
	})
}

func emptyResult() (*agent.ToolResult, error) {
	return jsonResult(map[string]any{
		"status":  "success",
		"message": "No previous conversation found",
		"data":    []entry{},
	})
}

func jsonResult(v any) (*agent.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to encode result: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{Content: string(data)}, nil
}
