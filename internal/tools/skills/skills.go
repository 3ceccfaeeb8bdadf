// Package skills provides the skill_evaluator capability: keyword-based
// scoring of a user's messages against a fixed set of social skills, with
// levels persisted in SQLite.
package skills

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mentorly/mentor/internal/agent"
)

// maxLevel is the highest persisted skill level.
const maxLevel = 10

// skillDef describes one tracked skill and the phrases that exercise it.
type skillDef struct {
	description string
	keywords    []string
}

var skillSet = map[string]skillDef{
	"active_listening": {
		description: "Ability to actively listen and respond appropriately",
		keywords:    []string{"i understand", "i hear you", "that makes sense"},
	},
	"empathy": {
		description: "Ability to show understanding and share feelings",
		keywords:    []string{"i understand how you feel", "that must be"},
	},
	"clarity": {
		description: "Clear and concise communication",
		keywords:    []string{"let me explain", "to clarify"},
	},
	"engagement": {
		description: "Keeping the conversation engaging",
		keywords:    []string{"what do you think", "how about you"},
	},
}

// Store persists per-user skill levels.
type Store struct {
	db *sql.DB
}

// NewStore creates the skill store and its table.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_skills (
			user_id    TEXT NOT NULL,
			skill      TEXT NOT NULL,
			level      INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, skill)
		)`)
	if err != nil {
		return nil, fmt.Errorf("migrate skills schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Levels returns the user's current level for every tracked skill,
// defaulting to zero for skills never exercised.
func (s *Store) Levels(ctx context.Context, userID string) (map[string]int, error) {
	levels := make(map[string]int, len(skillSet))
	for name := range skillSet {
		levels[name] = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT skill, level FROM user_skills WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var skill string
		var level int
		if err := rows.Scan(&skill, &level); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		if _, tracked := skillSet[skill]; tracked {
			levels[skill] = level
		}
	}
	return levels, rows.Err()
}

// Bump raises the user's level for a skill by delta, capped at maxLevel.
func (s *Store) Bump(ctx context.Context, userID, skill string, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_skills (user_id, skill, level, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, skill)
		DO UPDATE SET level = MIN(level + ?, ?), updated_at = excluded.updated_at`,
		userID, skill, min(delta, maxLevel), time.Now(), delta, maxLevel)
	if err != nil {
		return fmt.Errorf("bump skill: %w", err)
	}
	return nil
}

type params struct {
	UserID   string   `json:"user_id"`
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// Tool implements the skill_evaluator capability.
type Tool struct {
	store *Store
}

// NewTool creates the skill evaluator over the given store.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "skill_evaluator"
}

func (t *Tool) Description() string {
	return "Evaluate the user's social skills (active listening, empathy, clarity, engagement) from their messages and track progress over time."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {
				"type": "string",
				"description": "The ID of the user to evaluate"
			},
			"message": {
				"type": "string",
				"description": "The message to evaluate for skills"
			},
			"messages": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Messages to evaluate (alternative to message)"
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
		return &agent.ToolResult{Content: "User ID is required", IsError: true}, nil
	}

	messages := p.Messages
	if len(messages) == 0 && p.Message != "" {
		messages = []string{p.Message}
	}
	if len(messages) == 0 {
		return &agent.ToolResult{Content: "No message or messages provided", IsError: true}, nil
	}

	// Score each message against the skill keyword sets.
	for _, msg := range messages {
		lower := strings.ToLower(msg)
		for name, def := range skillSet {
			hits := 0
			for _, kw := range def.keywords {
				hits += strings.Count(lower, kw)
			}
			if hits > 0 {
				if err := t.store.Bump(ctx, p.UserID, name, hits); err != nil {
					return &agent.ToolResult{
						Content: fmt.Sprintf("Failed to update skill levels: %v", err),
						IsError: true,
					}, nil
				}
			}
		}
	}

	levels, err := t.store.Levels(ctx, p.UserID)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to read skill levels: %v", err),
			IsError: true,
		}, nil
	}

	return jsonResult(buildReport(levels)), nil
}

// buildReport shapes the evaluation result. Levels are reported on a
// 0-100 scale; suggestions cover the weakest skills first.
func buildReport(levels map[string]int) map[string]any {
	names := make([]string, 0, len(levels))
	scores := make(map[string]int, len(levels))
	for name, level := range levels {
		names = append(names, name)
		scores[name] = level * 100 / maxLevel
	}
	sort.Slice(names, func(i, j int) bool {
		if levels[names[i]] != levels[names[j]] {
			return levels[names[i]] < levels[names[j]]
		}
		return names[i] < names[j]
	})

	var suggestions []string
	for _, name := range names {
		if levels[name] >= 7 {
			continue
		}
		def := skillSet[name]
		suggestions = append(suggestions,
			fmt.Sprintf("%s: try phrases like %q", name, strings.Join(def.keywords, `", "`)))
	}

	feedback := "Let's keep working on your communication skills."
	if len(suggestions) == 0 {
		feedback = "Excellent! You've mastered these skills."
	} else if levels[names[len(names)-1]] >= 5 {
		feedback = "Good progress! Keep it up!"
	}

	return map[string]any{
		"status":       "success",
		"message":      "Skill evaluation completed",
		"skill_levels": scores,
		"feedback":     feedback,
		"suggestions":  suggestions,
	}
}

func jsonResult(v any) *agent.ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to encode result: %v", err),
			IsError: true,
		}
	}
	return &agent.ToolResult{Content: string(data)}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
