package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	gets    int
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := value.([]byte)
	f.values[key] = string(raw)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingStore struct {
	*MemoryStore
	threadReads int
}

func (c *countingStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	c.threadReads++
	return c.MemoryStore.GetThread(ctx, id)
}

func TestCachedStoreServesThreadFromCache(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := newFakeCache()
	store := NewCachedStore(backing, cache, time.Minute, zap.NewNop())

	if _, err := store.CreateThread(ctx, Thread{ID: "t1", Name: "HR Profile Session"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thread, err := store.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread.Name != "HR Profile Session" {
		t.Fatalf("unexpected thread: %+v", thread)
	}
	if backing.threadReads != 0 {
		t.Fatalf("expected cache hit, backing store read %d times", backing.threadReads)
	}
}

func TestCachedStoreEvictsOnUpdate(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := newFakeCache()
	store := NewCachedStore(backing, cache, 0, nil)

	if _, err := store.CreateThread(ctx, Thread{ID: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdateThread(ctx, "t1", Metadata{"stage": "hard_skills"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cache.deleted) != 1 || cache.deleted[0] != threadKeyPrefix+"t1" {
		t.Fatalf("expected thread key eviction, got %v", cache.deleted)
	}

	thread, err := store.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread.Metadata["stage"] != "hard_skills" {
		t.Fatalf("expected fresh metadata, got %v", thread.Metadata)
	}
	if backing.threadReads != 1 {
		t.Fatalf("expected one backing read after eviction, got %d", backing.threadReads)
	}

	var cached Thread
	if err := json.Unmarshal([]byte(cache.values[threadKeyPrefix+"t1"]), &cached); err != nil {
		t.Fatalf("expected thread to be cached again: %v", err)
	}
}

func TestCachedStoreFallsBackWhenRedisFails(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	if _, err := backing.CreateThread(ctx, Thread{ID: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")

	core, observed := observer.New(zapcore.WarnLevel)
	store := NewCachedStore(backing, cache, time.Minute, zap.New(core))

	if _, err := store.GetThread(ctx, "t1"); err != nil {
		t.Fatalf("expected fallback to backing store, got %v", err)
	}
	if backing.threadReads != 1 {
		t.Fatalf("expected backing read, got %d", backing.threadReads)
	}
	if observed.FilterMessage("thread cache read failed").Len() != 1 {
		t.Fatalf("expected cache failure to be logged")
	}

	if _, err := store.GetThread(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
