package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per client in fixed windows.
type RateLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

// RateLimitResult describes one Allow decision.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// NewRateLimiter allows limit requests per window for each client key.
func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request for client. The counter and its expiry are set in
// one pipeline so an abandoned window never leaks a key without TTL.
func (l *RateLimiter) Allow(ctx context.Context, client string) (RateLimitResult, error) {
	windowIndex, resetAt := l.currentWindow()
	key := RateLimitKey(client, windowIndex)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit: %w", err)
	}

	return decide(incr.Val(), l.limit, resetAt), nil
}

func (l *RateLimiter) currentWindow() (int64, time.Time) {
	now := l.now()
	size := int64(l.window)
	if size <= 0 {
		size = int64(time.Minute)
	}
	index := now.UnixNano() / size
	return index, time.Unix(0, (index+1)*size)
}

func decide(count int64, limit int, resetAt time.Time) RateLimitResult {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
