package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DefaultRedisConfig returns settings for a local Redis on the default port.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379"}
}

// Connect opens a Redis client and verifies it with PING.
// The client is closed again if the ping fails.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return cli, nil
}

// RedisStore implements Store on top of INCR, GET and SET with expiry.
type RedisStore struct {
	redis *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Incr atomically increments the counter at key.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		Operations.WithLabelValues(backendRedis, "incr", resultError).Inc()
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	Operations.WithLabelValues(backendRedis, "incr", resultOK).Inc()
	return n, nil
}

// Get returns the value at key. Redis drops expired keys itself, so a
// missing key and an expired one both map to ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues(backendRedis, "get", resultMiss).Inc()
			return "", ErrNotFound
		}
		Operations.WithLabelValues(backendRedis, "get", resultError).Inc()
		return "", fmt.Errorf("redis get: %w", err)
	}
	Operations.WithLabelValues(backendRedis, "get", resultOK).Inc()
	return v, nil
}

// SetEx stores value at key with the given expiration.
func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		Operations.WithLabelValues(backendRedis, "setex", resultError).Inc()
		return ErrInvalidTTL
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		Operations.WithLabelValues(backendRedis, "setex", resultError).Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	Operations.WithLabelValues(backendRedis, "setex", resultOK).Inc()
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
