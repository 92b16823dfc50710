package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog implements TimestampLog with one Redis list per key: RPUSH appends
// at the tail, LPOP removes the head and LRANGE reads the whole list.
type RedisLog struct {
	client *redis.Client
	keyTTL time.Duration
}

// NewRedisLog connects to the configured Redis server and verifies it with a ping.
func NewRedisLog(config Config) (*RedisLog, error) {
	opts := config.Redis
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLog{client: client, keyTTL: opts.KeyTTL}, nil
}

// NewRedisLogFromClient wraps an existing client. The caller keeps ownership
// of client only until Close is called on the returned log.
func NewRedisLogFromClient(client *redis.Client, keyTTL time.Duration) *RedisLog {
	return &RedisLog{client: client, keyTTL: keyTTL}
}

// Read returns the entries for key, oldest first
func (r *RedisLog) Read(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	entries, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return entries, nil
}

// Append adds entry at the tail of the list for key, refreshing its TTL when one is configured
func (r *RedisLog) Append(ctx context.Context, key, entry string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if r.keyTTL <= 0 {
		if err := r.client.RPush(ctx, key, entry).Err(); err != nil {
			return fmt.Errorf("rpush %s: %w", key, err)
		}
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, entry)
	pipe.Expire(ctx, key, r.keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// PopOldest removes the head entry for key
func (r *RedisLog) PopOldest(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	// LPOP on a missing key replies nil, which go-redis surfaces as redis.Nil.
	if err := r.client.LPop(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lpop %s: %w", key, err)
	}
	return nil
}

// Clear removes the list for key
func (r *RedisLog) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Ping verifies the Redis server is reachable
func (r *RedisLog) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client connection pool
func (r *RedisLog) Close() error {
	return r.client.Close()
}
