package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_PermanentStopsAndUnwraps(t *testing.T) {
	base := errors.New("bad template")
	calls := 0
	err := Email(nil).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(base)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, base, err)
}

func TestPolicy_ZeroValueTriesOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_RetryIf(t *testing.T) {
	conflict := errors.New("40001")
	var attempts []int
	calls := 0
	p := Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		RetryIf:      func(err error) bool { return errors.Is(err, conflict) },
		OnRetry:      func(attempt int, _ error, _ time.Duration) { attempts = append(attempts, attempt) },
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return conflict
	})

	assert.ErrorIs(t, err, conflict)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)

	calls = 0
	other := errors.New("unique_violation")
	err = Database(func(err error) bool { return errors.Is(err, conflict) }).Do(context.Background(), func(context.Context) error {
		calls++
		return other
	})
	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	err := Policy{MaxAttempts: 10, InitialDelay: time.Hour}.Do(ctx, func(context.Context) error {
		cancel()
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPolicy_DelayCapped(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 3*time.Second, p.delay(5))
}
