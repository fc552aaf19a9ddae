package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by RedisClientWrapper.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient defines the cache operations the PDF cache depends on.
// Allows mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisClientWrapper wraps go-redis client to implement RedisClient.
type RedisClientWrapper struct {
	client *redis.Client
}

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient creates a new Redis client wrapper.
func NewRedisClient(cfg RedisConfig) (*RedisClientWrapper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClientWrapper{client: client}, nil
}

// Get retrieves a value from Redis.
func (r *RedisClientWrapper) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set stores a value in Redis with expiration.
func (r *RedisClientWrapper) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Ping tests the Redis connection.
func (r *RedisClientWrapper) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClientWrapper) Close() error {
	return r.client.Close()
}
