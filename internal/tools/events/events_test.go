package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStore_AddDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := &Event{UserID: "alice"}
	if err := store.Add(ctx, event); err != nil {
		t.Fatalf("add: %v", err)
	}
	if event.ID == "" {
		t.Error("add should assign an ID")
	}
	if event.EventType != "other" || event.Title != "Untitled Event" || event.ImpactLevel != 5 {
		t.Errorf("defaults not applied: %+v", event)
	}
}

func TestStore_GetScopedToUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := &Event{UserID: "alice", Title: "Graduation"}
	if err := store.Add(ctx, event); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := store.Get(ctx, "alice", event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Graduation" {
		t.Errorf("title = %q", got.Title)
	}

	if _, err := store.Get(ctx, "bob", event.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("another user's event should be invisible, got %v", err)
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := &Event{UserID: "alice", Title: "Old title"}
	if err := store.Add(ctx, event); err != nil {
		t.Fatalf("add: %v", err)
	}

	event.Title = "New title"
	event.ImpactLevel = 9
	if err := store.Update(ctx, event); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, "alice", event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "New title" || got.ImpactLevel != 9 {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := store.Delete(ctx, "alice", event.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "alice", event.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dates := []string{"2024-01-01", "2026-06-15", "2025-03-10"}
	for i, d := range dates {
		err := store.Add(ctx, &Event{UserID: "alice", Title: fmt.Sprintf("e%d", i), Date: d})
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	events, err := store.List(ctx, "alice", "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Date != "2026-06-15" || events[2].Date != "2024-01-01" {
		t.Errorf("events not newest-first: %v, %v, %v", events[0].Date, events[1].Date, events[2].Date)
	}
}

func TestStore_ListFiltersByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, &Event{UserID: "alice", EventType: "career", Title: "Promotion"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, &Event{UserID: "alice", EventType: "personal", Title: "Wedding"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	events, err := store.List(ctx, "alice", "career", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Promotion" {
		t.Errorf("filter failed: %+v", events)
	}
}

func executeTool(t *testing.T, tool *Tool, input string) map[string]any {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return out
}

func TestTool_AddAndList(t *testing.T) {
	tool := NewTool(newTestStore(t))

	out := executeTool(t, tool, `{"action": "add", "user_id": "alice", "title": "Got promoted", "date": "2026-03-01"}`)
	if out["status"] != "success" || out["message"] != "Life event added successfully" {
		t.Errorf("unexpected add result: %v", out)
	}

	out = executeTool(t, tool, `{"action": "list", "user_id": "alice"}`)
	if out["count"] != float64(1) {
		t.Errorf("count = %v, want 1", out["count"])
	}
	data, ok := out["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("data = %v", out["data"])
	}
	first := data[0].(map[string]any)
	if first["title"] != "Got promoted" || first["date"] != "2026-03-01" {
		t.Errorf("unexpected event shape: %v", first)
	}
}

func TestTool_Timeline(t *testing.T) {
	store := newTestStore(t)
	tool := NewTool(store)
	ctx := context.Background()

	for _, d := range []string{"2024-01-01", "2024-08-20", "2026-02-02", ""} {
		if err := store.Add(ctx, &Event{UserID: "alice", Title: "e", Date: d}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	out := executeTool(t, tool, `{"action": "timeline", "user_id": "alice"}`)
	timeline, ok := out["timeline"].(map[string]any)
	if !ok {
		t.Fatalf("timeline = %v", out["timeline"])
	}
	if len(timeline["2024"].([]any)) != 2 {
		t.Errorf("2024 should hold 2 events: %v", timeline["2024"])
	}
	if _, ok := timeline["2026"]; !ok {
		t.Error("2026 missing from timeline")
	}
	if _, ok := timeline["undated"]; !ok {
		t.Error("undated bucket missing")
	}
}

func TestTool_Validation(t *testing.T) {
	tool := NewTool(newTestStore(t))
	tests := []struct {
		input string
		want  string
	}{
		{`{"action": "add"}`, "User ID is required"},
		{`{"action": "get", "user_id": "alice"}`, "Event ID is required"},
		{`{"action": "explode", "user_id": "alice"}`, "Unknown action: explode"},
		{`{"action": "get", "user_id": "alice", "event_id": "nope"}`, "Event not found"},
	}
	for _, tt := range tests {
		result, err := tool.Execute(context.Background(), json.RawMessage(tt.input))
		if err != nil {
			t.Fatalf("execute %s: %v", tt.input, err)
		}
		if !result.IsError || result.Content != tt.want {
			t.Errorf("Execute(%s) = (%q, %t), want error %q", tt.input, result.Content, result.IsError, tt.want)
		}
	}
}
