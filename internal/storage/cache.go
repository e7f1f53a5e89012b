package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	threadKeyPrefix = "intake:thread:"
	defaultCacheTTL = 30 * time.Minute
)

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOptions configures the thread cache connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}

// CachedStore serves thread lookups from redis in front of another Store.
// Cache failures are logged and never fail the call.
type CachedStore struct {
	Store
	cache  cacheClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStore(next Store, cache cacheClient, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{Store: next, cache: cache, ttl: ttl, logger: logger}
}

func (s *CachedStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	key := threadKeyPrefix + id

	raw, err := s.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var thread Thread
		decodeErr := json.Unmarshal([]byte(raw), &thread)
		if decodeErr == nil {
			return &thread, nil
		}
		s.logger.Warn("drop undecodable cached thread", zap.String("key", key), zap.Error(decodeErr))
		s.evict(ctx, key)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("thread cache read failed", zap.String("key", key), zap.Error(err))
	}

	thread, err := s.Store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, thread)
	return thread, nil
}

func (s *CachedStore) CreateThread(ctx context.Context, thread Thread) (*Thread, error) {
	created, err := s.Store.CreateThread(ctx, thread)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, created)
	return created, nil
}

func (s *CachedStore) UpdateThread(ctx context.Context, id string, patch Metadata) error {
	if err := s.Store.UpdateThread(ctx, id, patch); err != nil {
		return err
	}

	s.evict(ctx, threadKeyPrefix+id)
	return nil
}

func (s *CachedStore) remember(ctx context.Context, thread *Thread) {
	raw, err := json.Marshal(thread)
	if err != nil {
		s.logger.Warn("encode thread for cache", zap.String("thread_id", thread.ID), zap.Error(err))
		return
	}

	if err := s.cache.Set(ctx, threadKeyPrefix+thread.ID, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("thread cache write failed", zap.String("thread_id", thread.ID), zap.Error(err))
	}
}

func (s *CachedStore) evict(ctx context.Context, key string) {
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("thread cache eviction failed", zap.String("key", key), zap.Error(err))
	}
}
