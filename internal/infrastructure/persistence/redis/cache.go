// Package redis implements the portal's Redis-backed helpers: claims that
// keep a notification from being sent by two instances, and a fixed-window
// rate limiter. The event bus in messaging shares the same client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// URL is a redis:// or rediss:// URL; it carries host, auth and DB.
	URL string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the local development configuration.
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Options converts the config into go-redis options.
func (c Config) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	opts.MinIdleConns = c.MinIdleConns
	if c.MaxRetries > 0 {
		opts.MaxRetries = c.MaxRetries
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheConnection = errors.New("cache: connection failed")
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty   = errors.New("cache: key cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS & TTLs
// ══════════════════════════════════════════════════════════════════════════════

const (
	// KeyPrefix namespaces every key the portal writes.
	KeyPrefix = "pd-portal:"

	PrefixClaim     = KeyPrefix + "claim:"
	PrefixRateLimit = KeyPrefix + "ratelimit:"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps the go-redis client the portal shares between its helpers.
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings Redis.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{client: client}, nil
}

// Client returns the underlying client, shared with the event bus.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIMS
// ══════════════════════════════════════════════════════════════════════════════

// Claim atomically takes key for ttl. It returns false when another
// instance already holds it.
func (c *Cache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		return false, ErrCacheInvalidTTL
	}
	ok, err := c.client.SetNX(ctx, ClaimKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so the work can be retried.
func (c *Cache) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.Del(ctx, ClaimKey(key)).Err()
}

// ClaimKey is the key of a claim.
func ClaimKey(key string) string {
	return PrefixClaim + key
}

// RateLimitKey is the counter key for one client in one window.
func RateLimitKey(client string, window int64) string {
	return fmt.Sprintf("%s%s:%d", PrefixRateLimit, client, window)
}
