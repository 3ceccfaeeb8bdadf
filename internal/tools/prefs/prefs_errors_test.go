package prefs

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockStore backs the store with sqlmock so database failures can be
// injected, which an in-memory SQLite database cannot produce.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_preferences").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, mock
}

func TestStore_GetQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT pref_type").WillReturnError(sqlmock.ErrCancelled)

	_, err := store.Get(context.Background(), "alice", "")
	if err == nil || !strings.Contains(err.Error(), "query preferences") {
		t.Errorf("error should name the failing operation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_SetExecError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO user_preferences").WillReturnError(sqlmock.ErrCancelled)

	err := store.Set(context.Background(), "alice", Preference{Type: "interest", Key: "music", Value: "jazz"})
	if err == nil || !strings.Contains(err.Error(), "set preference") {
		t.Errorf("error should name the failing operation: %v", err)
	}
}

func TestTool_DatabaseErrorFolded(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT pref_type").WillReturnError(sqlmock.ErrCancelled)
	tool := NewTool(store)

	result, err := tool.Execute(context.Background(), []byte(`{"action": "get", "user_id": "alice"}`))
	if err != nil {
		t.Fatalf("database failures must fold into the result: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "Failed to get preferences") {
		t.Errorf("unexpected result: %+v", result)
	}
}
