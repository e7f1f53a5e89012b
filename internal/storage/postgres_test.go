package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPGStore(db)
	store.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

	return store, mock
}

func TestPGStoreGetThread(t *testing.T) {
	store, mock := newMockStore(t)
	now := store.now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, user_identifier, tags, metadata, created_at, updated_at FROM threads WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(threadColumns).
			AddRow("t1", "HR Profile Session", "hr_user", []byte(`["hr","profile"]`), []byte(`{"profile_context":{"current_stage":"position"}}`), now, now))

	thread, err := store.GetThread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}

	if thread.Name != "HR Profile Session" || len(thread.Tags) != 2 || thread.Tags[1] != "profile" {
		t.Fatalf("unexpected thread: %+v", thread)
	}
	snapshot, ok := thread.Metadata["profile_context"].(map[string]any)
	if !ok || snapshot["current_stage"] != "position" {
		t.Fatalf("unexpected metadata: %v", thread.Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetThreadNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM threads").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(threadColumns))

	if _, err := store.GetThread(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreCreateThread(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO threads (id,name,user_identifier,tags,metadata,created_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)")).
		WithArgs("t1", "HR Profile Session", "hr_user", `["hr","profile"]`, `{}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	thread, err := store.CreateThread(context.Background(), Thread{
		ID:             "t1",
		Name:           "HR Profile Session",
		UserIdentifier: "hr_user",
		Tags:           []string{"hr", "profile"},
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if !thread.CreatedAt.Equal(store.now()) {
		t.Fatalf("expected creation time to be set, got %s", thread.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreCreateThreadDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO threads").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	if _, err := store.CreateThread(context.Background(), Thread{ID: "t1"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestPGStoreUpdateThreadMergesMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE threads SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb")).
		WithArgs(`{"profile_context":{"current_stage":"complete"}}`, sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateThread(context.Background(), "t1", Metadata{
		"profile_context": map[string]any{"current_stage": "complete"},
	})
	if err != nil {
		t.Fatalf("UpdateThread: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreUpdateMissingThread(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE threads").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateThread(context.Background(), "missing", Metadata{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreMessages(t *testing.T) {
	store, mock := newMockStore(t)
	now := store.now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages (id,thread_id,role,content,metadata,created_at) VALUES ($1,$2,$3,$4,$5,$6)")).
		WithArgs(sqlmock.AnyArg(), "t1", "user", "Hello", `{"message_type":"user"}`, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	msg, err := store.CreateMessage(context.Background(), Message{
		ThreadID: "t1",
		Role:     "user",
		Content:  "Hello",
		Metadata: Metadata{"message_type": "user"},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected message id to be generated")
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, thread_id, role, content, metadata, created_at FROM messages WHERE thread_id = $1 ORDER BY created_at ASC, seq ASC")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("m1", "t1", "user", "Hello", []byte(`{"message_type":"user"}`), now).
			AddRow("m2", "t1", "assistant", "Hi!", []byte(`{}`), now.Add(time.Second)))

	messages, err := store.ListMessages(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "m1" || messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if messages[0].Metadata["message_type"] != "user" {
		t.Fatalf("unexpected metadata: %v", messages[0].Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
