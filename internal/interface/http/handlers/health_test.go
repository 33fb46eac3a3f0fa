package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdportal/pd-portal/pkg/circuitbreaker"
)

type fakeBreaker struct{ state circuitbreaker.State }

func (f fakeBreaker) BreakerState() circuitbreaker.State { return f.state }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("database", ok)
		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
		assert.Equal(t, "All checks passed", status.Message)
	})

	t.Run("critical failure", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("database", down)
		c.AddCheck("redis", ok)
		status := c.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.False(t, status.Ready)
		assert.Equal(t, "connection refused", status.Checks["database"].Message)
	})

	t.Run("soft failure degrades", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("database", ok)
		c.AddSoftCheck("email", NewBreakerCheck(fakeBreaker{state: circuitbreaker.StateOpen}))
		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
		assert.True(t, status.Degraded)
		assert.Equal(t, "Some checks failed: email", status.Message)
	})

	t.Run("replaced check", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("database", down)
		c.AddCheck("database", ok)
		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.Len(t, status.Checks, 1)
	})

	t.Run("ping check", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddSoftCheck("redis", NewPingCheck(pinger{err: errors.New("dial tcp: refused")}))
		status := c.Check(context.Background())
		assert.True(t, status.Ready)
		assert.False(t, status.Checks["redis"].Critical)
		assert.Equal(t, "dial tcp: refused", status.Checks["redis"].Message)
	})
}

func TestBreakerCheck(t *testing.T) {
	assert.NoError(t, NewBreakerCheck(fakeBreaker{state: circuitbreaker.StateClosed})(context.Background()))
	assert.NoError(t, NewBreakerCheck(fakeBreaker{state: circuitbreaker.StateHalfOpen})(context.Background()))
	assert.ErrorIs(t, NewBreakerCheck(fakeBreaker{state: circuitbreaker.StateOpen})(context.Background()), ErrBreakerOpen)
}
