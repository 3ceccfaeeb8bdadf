// Package prefs provides the user_preference capability: get, set, and
// delete per-user preferences persisted in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mentorly/mentor/internal/agent"
)

// Preference is one stored user preference.
type Preference struct {
	Type       string  `json:"preference_type"`
	Key        string  `json:"preference_key"`
	Value      string  `json:"preference_value"`
	Confidence float64 `json:"confidence"`
}

// Store persists preferences. It shares the session store's database
// handle.
type Store struct {
	db *sql.DB
}

// NewStore creates the preference store and its table.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id    TEXT NOT NULL,
			pref_type  TEXT NOT NULL,
			pref_key   TEXT NOT NULL,
			pref_value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, pref_type, pref_key)
		)`)
	if err != nil {
		return nil, fmt.Errorf("migrate preferences schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the user's preferences, optionally filtered by type.
func (s *Store) Get(ctx context.Context, userID, prefType string) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pref_type, pref_key, pref_value, confidence
		FROM user_preferences
		WHERE user_id = ? AND (? = '' OR pref_type = ?)
		ORDER BY pref_type, pref_key`, userID, prefType, prefType)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Type, &p.Key, &p.Value, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Set inserts or replaces one preference.
func (s *Store) Set(ctx context.Context, userID string, p Preference) error {
	if p.Confidence <= 0 {
		p.Confidence = 1.0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, pref_type, pref_key, pref_value, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, pref_type, pref_key)
		DO UPDATE SET pref_value = excluded.pref_value,
		              confidence = excluded.confidence,
		              updated_at = excluded.updated_at`,
		userID, p.Type, p.Key, p.Value, p.Confidence, time.Now())
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// Delete removes preferences matching the given type and/or key. At least
// one filter is required. Returns the number of rows deleted.
func (s *Store) Delete(ctx context.Context, userID, prefType, prefKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM user_preferences
		WHERE user_id = ?
		  AND (? = '' OR pref_type = ?)
		  AND (? = '' OR pref_key = ?)`,
		userID, prefType, prefType, prefKey, prefKey)
	if err != nil {
		return 0, fmt.Errorf("delete preferences: %w", err)
	}
	return res.RowsAffected()
}

type params struct {
	Action     string  `json:"action"`
	UserID     string  `json:"user_id"`
	Type       string  `json:"preference_type,omitempty"`
	Key        string  `json:"preference_key,omitempty"`
	Value      string  `json:"preference_value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Tool implements the user_preference capability.
type Tool struct {
	store *Store
}

// NewTool creates the preference tool over the given store.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "user_preference"
}

func (t *Tool) Description() string {
	return "Manage user preferences. Use this tool to get, set, or delete user preferences such as interests, personal details, and conversation settings."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["get", "set", "delete"],
				"description": "The action to perform"
			},
			"user_id": {
				"type": "string",
				"description": "The ID of the user"
			},
			"preference_type": {
				"type": "string",
				"description": "The type/category of preference (required for set)"
			},
			"preference_key": {
				"type": "string",
				"description": "The specific preference key (required for set)"
			},
			"preference_value": {
				"type": "string",
				"description": "The value to set (required for set)"
			},
			"confidence": {
				"type": "number",
				"description": "Confidence score (0-1) for the preference",
				"minimum": 0,
				"maximum": 1
			}
		},
		"required": ["action", "user_id"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var p params
	if err := json.Unmarshal(input, &p); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if p.UserID == "" {
		return errorResult("user_id is required"), nil
	}

	switch strings.ToLower(p.Action) {
	case "get":
		prefs, err := t.store.Get(ctx, p.UserID, p.Type)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to get preferences: %v", err)), nil
		}
		if prefs == nil {
			prefs = []Preference{}
		}
		return jsonResult(map[string]any{
			"status":      "success",
			"preferences": prefs,
		}), nil

	case "set":
		if p.Type == "" || p.Key == "" || p.Value == "" {
			return errorResult("Missing required fields. Required: preference_type, preference_key, preference_value"), nil
		}
		err := t.store.Set(ctx, p.UserID, Preference{
			Type:       p.Type,
			Key:        p.Key,
			Value:      p.Value,
			Confidence: p.Confidence,
		})
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to set preference: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"status":  "success",
			"message": "Preference set successfully",
		}), nil

	case "delete":
		if p.Type == "" && p.Key == "" {
			return errorResult("Must provide at least one of preference_type or preference_key"), nil
		}
		deleted, err := t.store.Delete(ctx, p.UserID, p.Type, p.Key)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to delete preferences: %v", err)), nil
		}
		if deleted == 0 {
			return errorResult("No matching preferences found to delete"), nil
		}
		return jsonResult(map[string]any{
			"status":  "success",
			"message": "Preferences deleted successfully",
		}), nil

	default:
		return errorResult(fmt.Sprintf("Invalid action: %s. Must be one of: get, set, delete", p.Action)), nil
	}
}

func jsonResult(v any) *agent.ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(data)}
}

func errorResult(msg string) *agent.ToolResult {
	return &agent.ToolResult{Content: msg, IsError: true}
}
