package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Chain applies middlewares so the first one listed runs outermost.
func Chain(handler shared.EventHandler, middlewares ...Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// safeCall runs a handler and turns a panic into an error.
func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(event)
}

// LoggingMiddleware logs handler execution.
func LoggingMiddleware(logger *slog.Logger, name string) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)

			attrs := []any{
				"handler", name,
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("handler failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("handler completed", attrs...)
			}
			return err
		}
	}
}

// TimeoutMiddleware bounds how long the bus waits for a handler. The handler
// keeps running in the background after a timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- safeCall(next, event) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return fmt.Errorf("handler timeout after %v", timeout)
			}
		}
	}
}

// Claimer grants one caller exclusive ownership of a key for a while.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ClaimKey identifies one delivery of event to the handler called name.
func ClaimKey(name string, event shared.Event) string {
	return fmt.Sprintf("%s:%s:%s:%d", name, event.EventType(), event.AggregateID(), event.OccurredAt().UnixNano())
}

// ClaimMiddleware runs the handler only for the instance that claims the
// event first. The claim is released when the handler fails so another
// delivery may retry. If the claim store is unreachable the handler runs.
func ClaimMiddleware(claimer Claimer, name string, ttl time.Duration, logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			ctx := context.Background()
			key := ClaimKey(name, event)

			ok, err := claimer.Claim(ctx, key, ttl)
			if err != nil {
				logger.Warn("event claim failed, handling anyway", "handler", name, "key", key, "error", err)
				return next(event)
			}
			if !ok {
				logger.Debug("event already claimed", "handler", name, "key", key)
				return nil
			}

			if err := next(event); err != nil {
				if relErr := claimer.Release(ctx, key); relErr != nil {
					logger.Warn("failed to release event claim", "handler", name, "key", key, "error", relErr)
				}
				return err
			}
			return nil
		}
	}
}

// LocalClaimer is an in-process Claimer for single-instance deployments.
type LocalClaimer struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]time.Time
}

// NewLocalClaimer creates an empty LocalClaimer.
func NewLocalClaimer() *LocalClaimer {
	return &LocalClaimer{now: time.Now, claims: make(map[string]time.Time)}
}

// Claim implements Claimer.
func (c *LocalClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, exp := range c.claims {
		if !now.Before(exp) {
			delete(c.claims, k)
		}
	}
	if _, taken := c.claims[key]; taken {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

// Release implements Claimer.
func (c *LocalClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}
