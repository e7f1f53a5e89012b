package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var openDB = sql.Open

// Connect opens the database through the pgx driver and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is empty")
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

var threadColumns = []string{"id", "name", "user_identifier", "tags", "metadata", "created_at", "updated_at"}

var messageColumns = []string{"id", "thread_id", "role", "content", "metadata", "created_at"}

func (s *PGStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query, args, err := psql.Select(threadColumns...).
		From("threads").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build thread query: %w", err)
	}

	var (
		thread        Thread
		tags, rawMeta []byte
	)
	err = s.DB.QueryRowContext(ctx, query, args...).Scan(
		&thread.ID,
		&thread.Name,
		&thread.UserIdentifier,
		&tags,
		&rawMeta,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get thread %s: %w", id, err)
	}

	if err := unmarshalJSONB(tags, &thread.Tags); err != nil {
		return nil, fmt.Errorf("decode thread tags: %w", err)
	}
	if err := unmarshalJSONB(rawMeta, &thread.Metadata); err != nil {
		return nil, fmt.Errorf("decode thread metadata: %w", err)
	}
	if thread.Metadata == nil {
		thread.Metadata = Metadata{}
	}

	return &thread, nil
}

func (s *PGStore) CreateThread(ctx context.Context, thread Thread) (*Thread, error) {
	if strings.TrimSpace(thread.ID) == "" {
		return nil, errors.New("thread id is required")
	}

	now := s.now()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now
	if thread.Metadata == nil {
		thread.Metadata = Metadata{}
	}
	if thread.Tags == nil {
		thread.Tags = []string{}
	}

	tags, err := json.Marshal(thread.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode thread tags: %w", err)
	}
	meta, err := json.Marshal(thread.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode thread metadata: %w", err)
	}

	query, args, err := psql.Insert("threads").
		Columns(threadColumns...).
		Values(thread.ID, thread.Name, thread.UserIdentifier, string(tags), string(meta), thread.CreatedAt, thread.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build thread insert: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("thread %s: %w", thread.ID, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create thread %s: %w", thread.ID, err)
	}

	return &thread, nil
}

// UpdateThread merges the patch with the jsonb concatenation operator in one statement,
// so concurrent writers of the same thread resolve as last write wins per key.
func (s *PGStore) UpdateThread(ctx context.Context, id string, patch Metadata) error {
	if patch == nil {
		patch = Metadata{}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}

	query, args, err := psql.Update("threads").
		Set("metadata", sq.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(raw))).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build thread update: %w", err)
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update thread %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update thread %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	return nil
}

func (s *PGStore) CreateMessage(ctx context.Context, msg Message) (*Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.Metadata == nil {
		msg.Metadata = Metadata{}
	}

	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode message metadata: %w", err)
	}

	query, args, err := psql.Insert("messages").
		Columns(messageColumns...).
		Values(msg.ID, msg.ThreadID, msg.Role, msg.Content, string(meta), msg.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build message insert: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("create message in thread %s: %w", msg.ThreadID, err)
	}

	return &msg, nil
}

func (s *PGStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"thread_id": threadID}).
		OrderBy("created_at ASC", "seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages of thread %s: %w", threadID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			msg     Message
			rawMeta []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &rawMeta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := unmarshalJSONB(rawMeta, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
