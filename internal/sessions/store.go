package sessions

import (
	"context"
	"errors"

	"github.com/mentorly/mentor/pkg/models"
)

// ErrNotFound is returned when a session or message does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence. Transcripts are
// append-only: messages are added, never rewritten.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error

	// Session lookup
	GetByKey(ctx context.Context, key string) (*models.Session, error)
	GetOrCreate(ctx context.Context, key string, userID string) (*models.Session, error)
	List(ctx context.Context, userID string, opts ListOptions) ([]*models.Session, error)

	// Message history
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// SessionKey builds a unique session key from a user and thread.
func SessionKey(userID, thread string) string {
	return userID + ":" + thread
}
