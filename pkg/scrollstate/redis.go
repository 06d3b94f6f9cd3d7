package scrollstate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEntryTTL bounds entry lifetime in Redis independently of the
// store's staleness sweep, so abandoned sessions do not accumulate.
const redisEntryTTL = 4 * time.Hour

// RedisBackend stores scroll state in Redis, letting one logical session
// span multiple processes.
type RedisBackend struct {
	redis *redis.Client

	// sessionPrefix namespaces keys per session id.
	sessionPrefix string
}

// NewRedisBackend creates a Redis-backed Backend scoped to sessionID.
func NewRedisBackend(redisClient *redis.Client, sessionID string) (*RedisBackend, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	return &RedisBackend{
		redis:         redisClient,
		sessionPrefix: "session:" + sessionID + ":",
	}, nil
}

// Get retrieves a value by key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.redis.Get(ctx, b.sessionPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores a value under key with a bounded TTL.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.redis.Set(ctx, b.sessionPrefix+key, value, redisEntryTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, b.sessionPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// List returns all keys with the given prefix, session prefix stripped.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := b.redis.Scan(ctx, 0, b.sessionPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(b.sessionPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	return keys, nil
}
