package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fugboizz/hanet-attendance-api/internal/config"
)

// CacheClient wraps Redis for short-TTL caching of upstream list responses.
// The proxy works without it; callers treat a nil *CacheClient as a disabled
// cache.
type CacheClient struct {
	client *redis.Client
}

// NewCacheClient connects to Redis and verifies the connection.
func NewCacheClient(cfg config.RedisConfig) (*CacheClient, error) {
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

	return &CacheClient{client: client}, nil
}

// Close closes the Redis connection.
func (cc *CacheClient) Close() error {
	return cc.client.Close()
}

// Set stores a value under key with an expiration.
func (cc *CacheClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return cc.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key.
func (cc *CacheClient) Get(ctx context.Context, key string) (string, error) {
	return cc.client.Get(ctx, key).Result()
}

// Delete removes a key.
func (cc *CacheClient) Delete(ctx context.Context, key string) error {
	return cc.client.Del(ctx, key).Err()
}
