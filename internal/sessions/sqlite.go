package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mentorly/mentor/pkg/models"
)

// QueryRecorder receives timing for store database queries.
// *observability.Metrics satisfies it.
type QueryRecorder interface {
	RecordDatabaseQuery(operation, table, status string, durationSeconds float64)
}

// SQLiteStore is a Store backed by SQLite via database/sql. Statements
// used on the hot path are prepared once at startup.
type SQLiteStore struct {
	db      *sql.DB
	metrics QueryRecorder

	insertSession  *sql.Stmt
	selectSession  *sql.Stmt
	selectByKey    *sql.Stmt
	deleteSession  *sql.Stmt
	touchSession   *sql.Stmt
	insertMessage  *sql.Stmt
	selectMessages *sql.Stmt
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
// ":memory:" gives an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent sessions.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle so capability stores can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SetMetrics enables query timing collection. A nil recorder disables it.
func (s *SQLiteStore) SetMetrics(recorder QueryRecorder) {
	s.metrics = recorder
}

// record reports one query to the recorder. A miss is not a failure; only
// real database errors count as errors.
func (s *SQLiteStore) record(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	s.metrics.RecordDatabaseQuery(operation, table, status, time.Since(start).Seconds())
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			key        TEXT NOT NULL UNIQUE,
			title      TEXT NOT NULL DEFAULT '',
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tool_calls   TEXT NOT NULL DEFAULT '[]',
			tool_results TEXT NOT NULL DEFAULT '[]',
			metadata     TEXT NOT NULL DEFAULT '{}',
			created_at   TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate sessions schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) prepare() error {
	var err error

	if s.insertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, user_id, key, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return fmt.Errorf("prepare insert session: %w", err)
	}
	if s.selectSession, err = s.db.Prepare(`
		SELECT id, user_id, key, title, metadata, created_at, updated_at
		FROM sessions WHERE id = ?`); err != nil {
		return fmt.Errorf("prepare select session: %w", err)
	}
	if s.selectByKey, err = s.db.Prepare(`
		SELECT id, user_id, key, title, metadata, created_at, updated_at
		FROM sessions WHERE key = ?`); err != nil {
		return fmt.Errorf("prepare select by key: %w", err)
	}
	if s.deleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = ?`); err != nil {
		return fmt.Errorf("prepare delete session: %w", err)
	}
	if s.touchSession, err = s.db.Prepare(`
		UPDATE sessions SET updated_at = ? WHERE id = ?`); err != nil {
		return fmt.Errorf("prepare touch session: %w", err)
	}
	if s.insertMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, tool_calls, tool_results, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	if s.selectMessages, err = s.db.Prepare(`
		SELECT id, session_id, role, content, tool_calls, tool_results, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id`); err != nil {
		return fmt.Errorf("prepare select messages: %w", err)
	}
	return nil
}

// Close closes the store and the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, session *models.Session) (err error) {
	start := time.Now()
	defer func() { s.record("insert", "sessions", start, err) }()

	if session == nil {
		return errors.New("session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	metadata, err := encodeJSON(session.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}

	_, err = s.insertSession.ExecContext(ctx,
		session.ID, session.UserID, session.Key, session.Title,
		metadata, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	start := time.Now()
	session, err := s.scanSession(s.selectSession.QueryRowContext(ctx, id))
	s.record("select", "sessions", start, err)
	return session, err
}

func (s *SQLiteStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	start := time.Now()
	session, err := s.scanSession(s.selectByKey.QueryRowContext(ctx, key))
	s.record("select", "sessions", start, err)
	return session, err
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session
	var metadata []byte
	err := row.Scan(&session.ID, &session.UserID, &session.Key,
		&session.Title, &metadata, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := decodeJSON(metadata, &session.Metadata); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.record("delete", "sessions", start, err) }()

	res, err := s.deleteSession.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
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

func (s *SQLiteStore) GetOrCreate(ctx context.Context, key string, userID string) (*models.Session, error) {
	session, err := s.GetByKey(ctx, key)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	session = &models.Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Key:    key,
	}
	if err := s.Create(ctx, session); err != nil {
		// Lost a race with a concurrent creator; the row exists now.
		if existing, getErr := s.GetByKey(ctx, key); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string, opts ListOptions) ([]*models.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key, title, metadata, created_at, updated_at
		FROM sessions
		WHERE (? = '' OR user_id = ?)
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, userID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var session models.Session
		var metadata []byte
		if err := rows.Scan(&session.ID, &session.UserID, &session.Key,
			&session.Title, &metadata, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := decodeJSON(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) (err error) {
	start := time.Now()
	defer func() { s.record("insert", "messages", start, err) }()

	if msg == nil {
		return errors.New("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.SessionID = sessionID

	toolCalls, err := encodeJSON(msg.ToolCalls, "[]")
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	toolResults, err := encodeJSON(msg.ToolResults, "[]")
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}
	metadata, err := encodeJSON(msg.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}

	if _, err := s.insertMessage.ExecContext(ctx,
		msg.ID, sessionID, string(msg.Role), msg.Content,
		toolCalls, toolResults, metadata, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := s.touchSession.ExecContext(ctx, msg.CreatedAt, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) (_ []*models.Message, err error) {
	start := time.Now()
	defer func() { s.record("select", "messages", start, err) }()

	rows, err := s.selectMessages.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var toolCalls, toolResults, metadata []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content,
			&toolCalls, &toolResults, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if err := decodeJSON(toolCalls, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		if err := decodeJSON(toolResults, &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("decode tool results: %w", err)
		}
		if err := decodeJSON(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 {
		return Window(out, limit), nil
	}
	return out, nil
}

func encodeJSON(v any, empty string) ([]byte, error) {
	if v == nil {
		return []byte(empty), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func decodeJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
