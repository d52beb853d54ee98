// Package cache stores rendered play payloads in Redis. Entries expire by TTL
// and are flushed after every rebuild.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlayCache stores encoded play payloads.
type PlayCache interface {
	GetPlay(ctx context.Context, gameID, playID int64) ([]byte, bool, error)
	SetPlay(ctx context.Context, gameID, playID int64, payload []byte) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// RedisCache handles caching of play payloads
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "metapitch:play"}
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// PlayKey returns the cache key of a play.
func (rc *RedisCache) PlayKey(gameID, playID int64) string {
	return fmt.Sprintf("%s:%d:%d", rc.prefix, gameID, playID)
}

// GetPlay returns a cached payload. A miss is (nil, false, nil).
func (rc *RedisCache) GetPlay(ctx context.Context, gameID, playID int64) ([]byte, bool, error) {
	b, err := rc.client.Get(ctx, rc.PlayKey(gameID, playID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetPlay stores a payload with the cache TTL.
func (rc *RedisCache) SetPlay(ctx context.Context, gameID, playID int64, payload []byte) error {
	return rc.client.Set(ctx, rc.PlayKey(gameID, playID), payload, rc.ttl).Err()
}

// Flush removes every cached play. A rebuild calls it so readers never see
// payloads from the previous store.
func (rc *RedisCache) Flush(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := rc.client.Scan(ctx, cursor, rc.prefix+":*", 500).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// NopCache never hits. It is used when Redis is not configured.
type NopCache struct{}

func (NopCache) GetPlay(context.Context, int64, int64) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) SetPlay(context.Context, int64, int64, []byte) error         { return nil }
func (NopCache) HealthCheck(context.Context) error                           { return nil }
func (NopCache) Close() error                                                { return nil }
