// Package cache implements the result cache: a short-lived in-process tier
// in front of Redis, with computed values stored as JSON.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/mcjars/www-sub000/internal/config"
)

// localTTL bounds how long computed values stay in the in-process tier.
const localTTL = 5 * time.Second

// Client wraps the Redis connection shared by the result cache, the rate
// limiter and the telemetry queue.
type Client struct {
	rdb   redis.UniversalClient
	local *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// New connects to Redis according to cfg. A failed ping is fatal.
func New(cfg config.Redis) (*Client, error) {
	var rdb redis.UniversalClient
	switch cfg.Mode {
	case config.RedisModeSentinel:
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Sentinels,
			DB:            cfg.DB,
			DialTimeout:   5 * time.Second,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
		})
	default:
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{
		rdb:   rdb,
		local: gocache.New(localTTL, 2*localTTL),
	}, nil
}

// Ping checks connectivity to Redis.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get reads key into dest. The second return is false when the key is
// absent. A present but undecodable payload is an error; callers surface it
// as an internal failure rather than recomputing.
func (c *Client) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached value %s: %w", key, err)
	}
	return true, nil
}

// Set JSON-encodes value and stores it under key for ttl.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys from both tiers.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		c.local.Delete(key)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix. It scans the full
// keyspace, so callers use it only on mutation boundaries.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	for key := range c.local.Items() {
		if strings.HasPrefix(key, prefix) {
			c.local.Delete(key)
		}
	}

	keys, err := c.rdb.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return fmt.Errorf("cache keys %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete prefix %s: %w", prefix, err)
	}
	return nil
}

// Hits returns the number of reads served from either cache tier.
func (c *Client) Hits() int64 { return c.hits.Load() }

// Misses returns the number of reads that fell through to compute.
func (c *Client) Misses() int64 { return c.misses.Load() }

// ResetStats zeroes the hit and miss counters.
func (c *Client) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Redis exposes the underlying connection for the rate limiter and other
// collaborators that need raw commands.
func (c *Client) Redis() redis.UniversalClient { return c.rdb }

// Close releases the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }
