// Package retry re-runs operations with exponential backoff and jitter.
// The portal uses it for email delivery and for re-running PostgreSQL
// transactions that lost a serialization race.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// permanentError stops retries.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy describes how often and how long to retry. The zero value makes a
// single attempt.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Multiplier grows the delay after each attempt. Values below 1 mean 1.
	Multiplier float64

	// Jitter spreads each delay by up to ±Jitter of itself, in [0, 1].
	Jitter float64

	// RetryIf reports whether err is transient. Nil retries every error.
	RetryIf func(error) bool

	// OnRetry is called before sleeping.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do runs op until it succeeds, returns a permanent or non-transient error,
// runs out of attempts or ctx is done. It returns the last error op
// returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt >= attempts || (p.RetryIf != nil && !p.RetryIf(err)) {
			return err
		}

		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func (p Policy) delay(attempt int) time.Duration {
	mult := math.Max(p.Multiplier, 1)
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * math.Min(p.Jitter, 1) * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Email retries outbound email on every error that is not Permanent.
func Email(onRetry func(attempt int, err error, delay time.Duration)) Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
		OnRetry:      onRetry,
	}
}

// Database retries a transaction on the errors retryIf accepts.
func Database(retryIf func(error) bool) Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       0.05,
		RetryIf:      retryIf,
	}
}
