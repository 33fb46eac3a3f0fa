package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCache connects to PD_PORTAL_TEST_REDIS_URL. Tests are skipped when
// the variable is unset.
func testCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("PD_PORTAL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PD_PORTAL_TEST_REDIS_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url
	c, err := NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_ClaimIsExclusive(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := "registration_confirmation:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Release(ctx, key) })

	ok, err := c.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, key))
	ok, err = c.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_RateLimiter(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	l := NewRateLimiter(c.Client(), 2, time.Minute)
	client := "203.0.113." + uuid.NewString()[:4]

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, client)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, client)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestCache_ClaimValidation(t *testing.T) {
	c := &Cache{}
	_, err := c.Claim(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = c.Claim(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Release(context.Background(), ""), ErrCacheKeyEmpty)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}
