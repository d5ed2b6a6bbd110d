package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Shared is the optional second cache layer. Implementations answer
// Enabled() so the tiered cache can skip a layer that was never configured
// instead of feature-detecting at call time.
type Shared interface {
	Enabled() bool
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the exact key and, best-effort, any key under the
	// prefix.
	Delete(ctx context.Context, keyOrPrefix string) error
}

// NoopShared is the disabled shared layer.
type NoopShared struct{}

func (NoopShared) Enabled() bool { return false }

func (NoopShared) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopShared) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopShared) Delete(context.Context, string) error { return nil }

// RedisShared backs the shared layer with Redis.
type RedisShared struct {
	rdb *redis.Client
}

// NewRedisShared connects to the Redis instance at addr ("host:port").
func NewRedisShared(addr string) *RedisShared {
	return &RedisShared{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (s *RedisShared) Enabled() bool { return true }

func (s *RedisShared) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisShared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisShared) Delete(ctx context.Context, keyOrPrefix string) error {
	if err := s.rdb.Del(ctx, keyOrPrefix).Err(); err != nil {
		return err
	}
	iter := s.rdb.Scan(ctx, 0, keyOrPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the Redis connection pool.
func (s *RedisShared) Close() error {
	return s.rdb.Close()
}
