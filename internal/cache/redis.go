package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"goportfolio/internal/core"
)

// DefaultKeyPrefix namespaces snapshot keys in shared backends.
const DefaultKeyPrefix = "goportfolio:snapshot:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix is prepended to every key (defaults to "goportfolio:snapshot:")
	KeyPrefix string
}

// RedisStore implements Store using Redis with native key expiry.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	slog.Info("redis snapshot store connected", "prefix", prefix)

	return newRedisStoreWithClient(client, prefix), nil
}

func newRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Get retrieves a snapshot from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) (*core.BucketSnapshot, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	return decodeRecord(data, s.now())
}

// Set stores a snapshot in Redis with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	data, err := encodeRecord(snap, s.now().Add(ttl))
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}

	return nil
}

func (s *RedisStore) Type() string { return TypeRedis }

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
