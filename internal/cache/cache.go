package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the read-through, write-invalidate accelerator in front of the
// durable stores. It never holds data absent from them; a miss must never be
// interpreted as "does not exist". Every method degrades silently: cache
// failures are logged and reported as misses so callers fall back to the
// durable store.
type Store interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Del(ctx context.Context, keys ...string)
	DelPattern(ctx context.Context, pattern string)
}

// Service implements Store on top of go-redis.
type Service struct {
	client *redis.Client
	logger *zap.Logger
}

// NewService builds the redis-backed cache.
func NewService(client *redis.Client, logger *zap.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// Get loads and unmarshals a cached value, reporting whether it was present.
func (s *Service) Get(ctx context.Context, key string, dest any) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		_ = s.client.Del(ctx, key).Err()
		return false
	}
	return true
}

// Set stores a JSON snapshot under key with the given TTL.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Del removes the given keys.
func (s *Service) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// DelPattern removes every key matching pattern using SCAN, so invalidation
// does not block redis the way KEYS would.
func (s *Service) DelPattern(ctx context.Context, pattern string) {
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	s.Del(ctx, keys...)
}
