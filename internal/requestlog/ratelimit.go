package requestlog

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/redis/go-redis/v9"
)

// Buckets scoping the per-IP budget.
const (
	BucketFiles   = "files"
	BucketRegular = "regular"
)

// Requests allowed per 60-second window.
const (
	LimitFiles         int64 = 30
	LimitRegular       int64 = 120
	LimitAuthenticated int64 = 240
)

const rateLimitWindow = 60 * time.Second

// RateLimit is the outcome of one admission check.
type RateLimit struct {
	Limit int64
	Hits  int64
}

// Exceeded reports whether the request went over budget.
func (r RateLimit) Exceeded() bool { return r.Hits > r.Limit }

// Remaining returns the requests left in the window, never negative.
func (r RateLimit) Remaining() int64 {
	if r.Hits >= r.Limit {
		return 0
	}
	return r.Limit - r.Hits
}

// RateLimiter counts requests per (client IP, bucket) in Redis.
type RateLimiter struct {
	rdb redis.UniversalClient
}

// NewRateLimiter wraps the shared Redis connection.
func NewRateLimiter(rdb redis.UniversalClient) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// Check counts one request against (ip, bucket) and reports the budget
// state. An existing window expiry at least two seconds out is reused so
// concurrent requests share one window; otherwise a fresh 60-second window
// starts. The read-increment-write is deliberately not atomic: slight
// overshoot across instances is acceptable for an advisory limit.
func (rl *RateLimiter) Check(ctx context.Context, ip netip.Addr, bucket string, authenticated bool) (RateLimit, error) {
	key := fmt.Sprintf("ratelimit::%s::%s", ip.Unmap(), bucket)

	count, err := rl.rdb.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return RateLimit{}, fmt.Errorf("rate limit read %s: %w", key, err)
	}

	now := time.Now()
	expiry := now.Add(rateLimitWindow)
	if at, err := rl.rdb.ExpireTime(ctx, key).Result(); err == nil && at > 0 {
		existing := time.Unix(int64(at/time.Second), 0)
		if !existing.Before(now.Add(2 * time.Second)) {
			expiry = existing
		}
	}

	count++
	if err := rl.rdb.SetArgs(ctx, key, count, redis.SetArgs{ExpireAt: expiry}).Err(); err != nil {
		return RateLimit{}, fmt.Errorf("rate limit write %s: %w", key, err)
	}

	limit := LimitRegular
	switch {
	case bucket == BucketFiles:
		limit = LimitFiles
	case authenticated:
		limit = LimitAuthenticated
	}
	return RateLimit{Limit: limit, Hits: count}, nil
}
