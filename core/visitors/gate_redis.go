package visitors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDayTTL is how long a gate key outlives the day it was written.
const RedisDayTTL = 48 * time.Hour

// RedisDayStore shares gate keys between processes through Redis.
type RedisDayStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayStore wraps an existing client.
func NewRedisDayStore(client *redis.Client) *RedisDayStore {
	return &RedisDayStore{client: client, ttl: RedisDayTTL}
}

// DialRedisDayStore connects to redisURL (redis://... or host:port) and pings it.
func DialRedisDayStore(ctx context.Context, redisURL string) (*RedisDayStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDayStore(client), nil
}

func (r *RedisDayStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return val, true, nil
}

func (r *RedisDayStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisDayStore) Close() error {
	return r.client.Close()
}
