package skills

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
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

func TestStore_LevelsDefaultToZero(t *testing.T) {
	store := newTestStore(t)
	levels, err := store.Levels(context.Background(), "alice")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(levels) != len(skillSet) {
		t.Fatalf("got %d skills, want %d", len(levels), len(skillSet))
	}
	for name, level := range levels {
		if level != 0 {
			t.Errorf("%s = %d, want 0", name, level)
		}
	}
}

func TestStore_BumpAccumulatesAndCaps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Bump(ctx, "alice", "empathy", 3); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if err := store.Bump(ctx, "alice", "empathy", 4); err != nil {
		t.Fatalf("bump: %v", err)
	}
	levels, err := store.Levels(ctx, "alice")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if levels["empathy"] != 7 {
		t.Errorf("empathy = %d, want 7", levels["empathy"])
	}

	if err := store.Bump(ctx, "alice", "empathy", 100); err != nil {
		t.Fatalf("bump: %v", err)
	}
	levels, err = store.Levels(ctx, "alice")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if levels["empathy"] != maxLevel {
		t.Errorf("empathy = %d, want cap %d", levels["empathy"], maxLevel)
	}
}

func TestStore_UsersIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Bump(ctx, "alice", "clarity", 5); err != nil {
		t.Fatalf("bump: %v", err)
	}
	levels, err := store.Levels(ctx, "bob")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if levels["clarity"] != 0 {
		t.Errorf("bob's clarity = %d, want 0", levels["clarity"])
	}
}

func TestTool_KeywordScoring(t *testing.T) {
	tool := NewTool(newTestStore(t))

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"user_id": "alice", "message": "I understand how you feel, that must be hard. What do you think?"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}

	var out struct {
		Status      string         `json:"status"`
		SkillLevels map[string]int `json:"skill_levels"`
		Feedback    string         `json:"feedback"`
		Suggestions []string       `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "success" {
		t.Errorf("status = %q", out.Status)
	}
	// "i understand how you feel" and "that must be" both hit empathy;
	// "i understand" also counts for active listening, "what do you
	// think" for engagement.
	if out.SkillLevels["empathy"] == 0 {
		t.Error("empathy should have been scored")
	}
	if out.SkillLevels["active_listening"] == 0 {
		t.Error("active listening should have been scored")
	}
	if out.SkillLevels["engagement"] == 0 {
		t.Error("engagement should have been scored")
	}
	if out.SkillLevels["clarity"] != 0 {
		t.Error("clarity keywords never appeared")
	}
	if out.Feedback == "" {
		t.Error("feedback missing")
	}
}

func TestTool_MultipleMessages(t *testing.T) {
	tool := NewTool(newTestStore(t))

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"user_id": "alice", "messages": ["let me explain", "to clarify, I meant tomorrow"]}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out struct {
		SkillLevels map[string]int `json:"skill_levels"`
	}
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SkillLevels["clarity"] != 2*100/maxLevel {
		t.Errorf("clarity = %d, want %d", out.SkillLevels["clarity"], 2*100/maxLevel)
	}
}

func TestTool_Validation(t *testing.T) {
	tool := NewTool(newTestStore(t))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"message": "hi"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "User ID is required" {
		t.Errorf("unexpected result: %+v", result)
	}

	result, err = tool.Execute(context.Background(), json.RawMessage(`{"user_id": "alice"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "No message or messages provided" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestBuildReport_Shape(t *testing.T) {
	report := buildReport(map[string]int{
		"active_listening": 10,
		"empathy":          8,
		"clarity":          4,
		"engagement":       0,
	})

	scores := report["skill_levels"].(map[string]int)
	if scores["active_listening"] != 100 || scores["clarity"] != 40 {
		t.Errorf("scores should be on a 0-100 scale: %v", scores)
	}

	suggestions := report["suggestions"].([]string)
	// Only skills below 7 get suggestions, weakest first.
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
	if !strings.HasPrefix(suggestions[0], "engagement:") {
		t.Errorf("weakest skill should come first: %q", suggestions[0])
	}
	if !strings.HasPrefix(suggestions[1], "clarity:") {
		t.Errorf("second suggestion = %q", suggestions[1])
	}
}

func TestBuildReport_Feedback(t *testing.T) {
	mastered := buildReport(map[string]int{"empathy": 9, "clarity": 8})
	if mastered["feedback"] != "Excellent! You've mastered these skills." {
		t.Errorf("feedback = %q", mastered["feedback"])
	}

	progressing := buildReport(map[string]int{"empathy": 6, "clarity": 2})
	if progressing["feedback"] != "Good progress! Keep it up!" {
		t.Errorf("feedback = %q", progressing["feedback"])
	}

	starting := buildReport(map[string]int{"empathy": 1, "clarity": 0})
	if starting["feedback"] != "Let's keep working on your communication skills." {
		t.Errorf("feedback = %q", starting["feedback"])
	}
}
