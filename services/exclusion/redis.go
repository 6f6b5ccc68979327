package exclusion

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/upb/llm-failover-router/services/providers"
)

// RedisStore keeps exclusions in Redis so every instance shares them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// IsExcluded checks for the key.
func (s *RedisStore) IsExcluded(ctx context.Context, tag providers.Tag, id int64) (bool, error) {
	n, err := s.client.Exists(ctx, Key(tag, id)).Result()
	if err != nil {
		return false, fmt.Errorf("exclusion lookup: %w", err)
	}
	return n > 0, nil
}

// Exclude sets the key with an expiry.
func (s *RedisStore) Exclude(ctx context.Context, tag providers.Tag, id int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, Key(tag, id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("exclusion write: %w", err)
	}
	return nil
}

// Backend returns "redis".
func (s *RedisStore) Backend() string { return "redis" }

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
