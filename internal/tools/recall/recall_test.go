package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mentorly/mentor/internal/sessions"
	"github.com/mentorly/mentor/pkg/models"
)

type recallResponse struct {
	Status        string  `json:"status"`
	Message       string  `json:"message"`
	Data          []entry `json:"data"`
	TotalMessages int     `json:"total_messages"`
}

func seedConversation(t *testing.T, store sessions.Store, userID, thread string, exchanges int) {
	t.Helper()
	ctx := context.Background()
	session, err := store.GetOrCreate(ctx, sessions.SessionKey(userID, thread), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < exchanges; i++ {
		msgs := []*models.Message{
			{Role: models.RoleUser, Content: fmt.Sprintf("question %d", i)},
			{Role: models.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
		}
		for _, msg := range msgs {
			if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}
}

func execute(t *testing.T, tool *Tool, input string) recallResponse {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	var resp recallResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestTool_Idempotent(t *testing.T) {
	if !New(sessions.NewMemoryStore()).Idempotent() {
		t.Error("recall_last_conversation must be idempotent")
	}
}

func TestExecute_RequiresUserID(t *testing.T) {
	tool := New(sessions.NewMemoryStore())
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "user_id is required" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestExecute_NoConversation(t *testing.T) {
	tool := New(sessions.NewMemoryStore())
	resp := execute(t, tool, `{"user_id": "nobody"}`)
	if resp.Status != "success" || resp.Message != "No previous conversation found" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Data) != 0 {
		t.Errorf("data should be empty: %+v", resp.Data)
	}
}

func TestExecute_ReturnsLastFive(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedConversation(t, store, "alice", "default", 4)
	tool := New(store)

	resp := execute(t, tool, `{"user_id": "alice"}`)
	if resp.Message != "Conversation retrieved successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.TotalMessages != 8 {
		t.Errorf("total_messages = %d, want 8", resp.TotalMessages)
	}
	if len(resp.Data) != 5 {
		t.Fatalf("got %d entries, want 5", len(resp.Data))
	}
	// The newest messages win: the window ends with the final answer.
	last := resp.Data[len(resp.Data)-1]
	if last.Role != "assistant" || last.Content != "answer 3" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestExecute_LimitOverride(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedConversation(t, store, "alice", "default", 4)
	tool := New(store)

	resp := execute(t, tool, `{"user_id": "alice", "limit": 2}`)
	if len(resp.Data) != 2 {
		t.Errorf("got %d entries, want 2", len(resp.Data))
	}
	if resp.TotalMessages != 8 {
		t.Errorf("total_messages = %d, want 8", resp.TotalMessages)
	}
}

func TestExecute_SkipsToolTraffic(t *testing.T) {
	store := sessions.NewMemoryStore()
	ctx := context.Background()
	session, err := store.GetOrCreate(ctx, sessions.SessionKey("alice", "default"), "alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	msgs := []*models.Message{
		{Role: models.RoleUser, Content: "look this up"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "web_search", Input: json.RawMessage(`{"query":"x"}`)},
		}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Content: "raw payload"},
		}},
		{Role: models.RoleAssistant, Content: "here is what I found"},
	}
	for _, msg := range msgs {
		if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp := execute(t, New(store), `{"user_id": "alice"}`)
	if resp.TotalMessages != 2 {
		t.Errorf("total_messages = %d, want 2", resp.TotalMessages)
	}
	for _, e := range resp.Data {
		if e.Role != "user" && e.Role != "assistant" {
			t.Errorf("unexpected role %q in recall", e.Role)
		}
		if e.Content == "" {
			t.Error("empty content should be skipped")
		}
	}
}

func TestExecute_ThreadsIsolated(t *testing.T) {
	store := sessions.NewMemoryStore()
	seedConversation(t, store, "alice", "planning", 1)
	tool := New(store)

	resp := execute(t, tool, `{"user_id": "alice"}`)
	if resp.Message != "No previous conversation found" {
		t.Errorf("default thread should be empty: %+v", resp)
	}

	resp = execute(t, tool, `{"user_id": "alice", "session": "planning"}`)
	if resp.TotalMessages != 2 {
		t.Errorf("total_messages = %d, want 2", resp.TotalMessages)
	}
}
