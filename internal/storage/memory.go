package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps threads in process memory. Used when no database is configured and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	threads  map[string]*Thread
	messages map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetThread(_ context.Context, id string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return copyThread(thread)
}

func (s *MemoryStore) CreateThread(_ context.Context, thread Thread) (*Thread, error) {
	if strings.TrimSpace(thread.ID) == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[thread.ID]; ok {
		return nil, fmt.Errorf("thread %s: %w", thread.ID, ErrAlreadyExists)
	}

	now := s.now()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now
	thread.Metadata = mergeMetadata(nil, thread.Metadata)

	stored, err := copyThread(&thread)
	if err != nil {
		return nil, err
	}
	s.threads[thread.ID] = stored

	return copyThread(stored)
}

func (s *MemoryStore) UpdateThread(_ context.Context, id string, patch Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[id]
	if !ok {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	copied, err := copyMetadata(patch)
	if err != nil {
		return err
	}
	thread.Metadata = mergeMetadata(thread.Metadata, copied)
	thread.UpdatedAt = s.now()

	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[msg.ThreadID]; !ok {
		return nil, fmt.Errorf("thread %s: %w", msg.ThreadID, ErrNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	metadata, err := copyMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}
	msg.Metadata = metadata

	s.messages[msg.ThreadID] = append(s.messages[msg.ThreadID], msg)

	out := msg
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, threadID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[threadID]
	out := make([]Message, len(stored))
	copy(out, stored)

	// Stable keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func copyThread(t *Thread) (*Thread, error) {
	out := *t
	out.Tags = append([]string(nil), t.Tags...)

	metadata, err := copyMetadata(t.Metadata)
	if err != nil {
		return nil, err
	}
	out.Metadata = metadata

	return &out, nil
}

// copyMetadata deep-copies through JSON so stored values never alias caller maps.
func copyMetadata(m Metadata) (Metadata, error) {
	if m == nil {
		return Metadata{}, nil
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var out Metadata
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return out, nil
}
