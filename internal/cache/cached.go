package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mcjars/www-sub000/internal/metrics"
)

// Cached memoizes compute under key. Lookup order is the in-process tier,
// then Redis, then compute; computed values are written back to both tiers.
//
// Cached is not single-flight: two concurrent misses may both run compute
// and the last write wins. Computations are read-only and idempotent, so
// this is accepted. A Redis write failure still returns the computed value.
func Cached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.local.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
			return typed, nil
		}
	}
	metrics.CacheOperations.WithLabelValues("local", "miss").Inc()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, fmt.Errorf("decode cached value %s: %w", key, err)
		}
		c.hits.Add(1)
		metrics.CacheOperations.WithLabelValues("redis", "hit").Inc()
		c.local.Set(key, out, localTTL)
		return out, nil
	case errors.Is(err, redis.Nil):
	default:
		return zero, fmt.Errorf("cache get %s: %w", key, err)
	}

	c.misses.Add(1)
	metrics.CacheOperations.WithLabelValues("redis", "miss").Inc()

	out, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	if raw, err := json.Marshal(out); err == nil {
		c.rdb.Set(ctx, key, raw, ttl)
	}
	c.local.Set(key, out, localTTL)
	return out, nil
}
