package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Metadata is a JSON-shaped bag: nested maps, slices, strings, numbers, booleans and nulls.
type Metadata map[string]any

// Thread is one stored conversation.
type Thread struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	UserIdentifier string    `json:"user_identifier"`
	Tags           []string  `json:"tags"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is an immutable entry of the thread log.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists threads and their messages. Messages are listed in creation order.
type Store interface {
	GetThread(ctx context.Context, id string) (*Thread, error)
	CreateThread(ctx context.Context, thread Thread) (*Thread, error)
	// UpdateThread merges the patch into the stored metadata, replacing top-level keys.
	UpdateThread(ctx context.Context, id string, patch Metadata) error
	CreateMessage(ctx context.Context, msg Message) (*Message, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

func mergeMetadata(dst Metadata, patch Metadata) Metadata {
	if dst == nil {
		dst = Metadata{}
	}
	for k, v := range patch {
		dst[k] = v
	}
	return dst
}
