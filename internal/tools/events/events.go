// Package events provides the life_event capability: recording and
// recalling significant events in a user's life, persisted in SQLite.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentorly/mentor/internal/agent"
)

// ErrNotFound is returned when an event does not exist for the user.
var ErrNotFound = errors.New("events: not found")

// Event is one recorded life event.
type Event struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	EventType   string `json:"event_type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	Location    string `json:"location,omitempty"`
	ImpactLevel int    `json:"impact_level"`
}

// Store persists life events.
type Store struct {
	db *sql.DB
}

// NewStore creates the event store and its table.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS life_events (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			event_date   TEXT NOT NULL DEFAULT '',
			location     TEXT NOT NULL DEFAULT '',
			impact_level INTEGER NOT NULL DEFAULT 5,
			created_at   TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_life_events_user ON life_events(user_id, event_date)`)
	if err != nil {
		return nil, fmt.Errorf("migrate events schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add inserts a new event, assigning an ID when unset.
func (s *Store) Add(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EventType == "" {
		e.EventType = "other"
	}
	if e.Title == "" {
		e.Title = "Untitled Event"
	}
	if e.ImpactLevel <= 0 {
		e.ImpactLevel = 5
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO life_events (id, user_id, event_type, title, description, event_date, location, impact_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EventType, e.Title, e.Description, e.Date, e.Location, e.ImpactLevel, time.Now())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get returns one event by ID, scoped to the user.
func (s *Store) Get(ctx context.Context, userID, eventID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_type, title, description, event_date, location, impact_level
		FROM life_events WHERE id = ? AND user_id = ?`, eventID, userID)

	var e Event
	err := row.Scan(&e.ID, &e.UserID, &e.EventType, &e.Title,
		&e.Description, &e.Date, &e.Location, &e.ImpactLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

// Update overwrites the mutable fields of an existing event.
func (s *Store) Update(ctx context.Context, e *Event) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE life_events
		SET event_type = ?, title = ?, description = ?, event_date = ?, location = ?, impact_level = ?
		WHERE id = ? AND user_id = ?`,
		e.EventType, e.Title, e.Description, e.Date, e.Location, e.ImpactLevel, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one event by ID, scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM life_events WHERE id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the user's events newest-first, optionally filtered by type.
func (s *Store) List(ctx context.Context, userID, eventType string, limit, offset int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, title, description, event_date, location, impact_level
		FROM life_events
		WHERE user_id = ? AND (? = '' OR event_type = ?)
		ORDER BY event_date DESC, created_at DESC
		LIMIT ? OFFSET ?`, userID, eventType, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Title,
			&e.Description, &e.Date, &e.Location, &e.ImpactLevel); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type params struct {
	Action      string `json:"action"`
	UserID      string `json:"user_id"`
	EventID     string `json:"event_id,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty"`
	Location    string `json:"location,omitempty"`
	ImpactLevel int    `json:"impact_level,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Tool implements the life_event capability.
type Tool struct {
	store *Store
}

// NewTool creates the life event tool over the given store.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "life_event"
}

func (t *Tool) Description() string {
	return "Manage and track important life events for users: record significant events like birthdays, graduations, and job changes, and recall them later."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add", "get", "update", "delete", "list", "timeline"],
				"description": "Action to perform"
			},
			"user_id": {
				"type": "string",
				"description": "The ID of the user"
			},
			"event_id": {
				"type": "string",
				"description": "ID of the event (required for get/update/delete)"
			},
			"event_type": {
				"type": "string",
				"description": "Type of the event"
			},
			"title": {
				"type": "string",
				"description": "Title of the event"
			},
			"description": {
				"type": "string",
				"description": "Detailed description of the event"
			},
			"date": {
				"type": "string",
				"description": "When the event happened (YYYY-MM-DD)"
			},
			"location": {
				"type": "string",
				"description": "Where the event occurred"
			},
			"impact_level": {
				"type": "integer",
				"description": "Importance level from 1-10",
				"minimum": 1,
				"maximum": 10
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of events to return"
			},
			"offset": {
				"type": "integer",
				"description": "Offset for pagination"
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
		return errorResult("User ID is required"), nil
	}

	switch strings.ToLower(p.Action) {
	case "add":
		return t.add(ctx, &p)
	case "get":
		return t.get(ctx, &p)
	case "update":
		return t.update(ctx, &p)
	case "delete":
		return t.delete(ctx, &p)
	case "list":
		return t.list(ctx, &p)
	case "timeline":
		return t.timeline(ctx, &p)
	default:
		return errorResult(fmt.Sprintf("Unknown action: %s", p.Action)), nil
	}
}

func (t *Tool) add(ctx context.Context, p *params) (*agent.ToolResult, error) {
	event := &Event{
		UserID:      p.UserID,
		EventType:   p.EventType,
		Title:       p.Title,
		Description: p.Description,
		Date:        p.Date,
		Location:    p.Location,
		ImpactLevel: p.ImpactLevel,
	}
	if err := t.store.Add(ctx, event); err != nil {
		return errorResult(fmt.Sprintf("Failed to add event: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"message": "Life event added successfully",
		"event":   event,
	}), nil
}

func (t *Tool) get(ctx context.Context, p *params) (*agent.ToolResult, error) {
	if p.EventID == "" {
		return errorResult("Event ID is required"), nil
	}
	event, err := t.store.Get(ctx, p.UserID, p.EventID)
	if errors.Is(err, ErrNotFound) {
		return errorResult("Event not found"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to get event: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status": "success",
		"event":  event,
	}), nil
}

func (t *Tool) update(ctx context.Context, p *params) (*agent.ToolResult, error) {
	if p.EventID == "" {
		return errorResult("Event ID is required for update"), nil
	}
	event, err := t.store.Get(ctx, p.UserID, p.EventID)
	if errors.Is(err, ErrNotFound) {
		return errorResult("Event not found"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to update event: %v", err)), nil
	}

	// Only provided fields overwrite the stored ones.
	if p.EventType != "" {
		event.EventType = p.EventType
	}
	if p.Title != "" {
		event.Title = p.Title
	}
	if p.Description != "" {
		event.Description = p.Description
	}
	if p.Date != "" {
		event.Date = p.Date
	}
	if p.Location != "" {
		event.Location = p.Location
	}
	if p.ImpactLevel > 0 {
		event.ImpactLevel = p.ImpactLevel
	}

	if err := t.store.Update(ctx, event); err != nil {
		return errorResult(fmt.Sprintf("Failed to update event: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"message": "Event updated successfully",
		"event":   event,
	}), nil
}

func (t *Tool) delete(ctx context.Context, p *params) (*agent.ToolResult, error) {
	if p.EventID == "" {
		return errorResult("Event ID is required"), nil
	}
	err := t.store.Delete(ctx, p.UserID, p.EventID)
	if errors.Is(err, ErrNotFound) {
		return errorResult("Event not found"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to delete event: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status":  "success",
		"message": "Event deleted successfully",
	}), nil
}

func (t *Tool) list(ctx context.Context, p *params) (*agent.ToolResult, error) {
	events, err := t.store.List(ctx, p.UserID, p.EventType, p.Limit, p.Offset)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list events: %v", err)), nil
	}
	if events == nil {
		events = []Event{}
	}
	return jsonResult(map[string]any{
		"status": "success",
		"count":  len(events),
		"data":   events,
	}), nil
}

// timeline groups the user's events by year of their date field; undated
// events land under "undated".
func (t *Tool) timeline(ctx context.Context, p *params) (*agent.ToolResult, error) {
	events, err := t.store.List(ctx, p.UserID, "", 1000, 0)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to build timeline: %v", err)), nil
	}

	timeline := map[string][]Event{}
	for _, e := range events {
		year := "undated"
		if len(e.Date) >= 4 {
			year = e.Date[:4]
		}
		timeline[year] = append(timeline[year], e)
	}

	return jsonResult(map[string]any{
		"status":   "success",
		"timeline": timeline,
	}), nil
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
