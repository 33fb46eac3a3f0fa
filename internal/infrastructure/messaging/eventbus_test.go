package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var created, all int
	require.NoError(t, bus.Subscribe(shared.EventRegistrationCreated, func(shared.Event) error {
		created++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRegistrationEvent(shared.EventRegistrationCreated, "r1", "u1", "s1", "registered")))
	require.NoError(t, bus.Publish(shared.NewRegistrationEvent(shared.EventRegistrationCancelled, "r1", "u1", "s1", "cancelled")))

	assert.Equal(t, 1, created)
	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_HandlerFailureDoesNotReachPublisher(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("smtp down") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2)))
}

func TestInMemoryEventBus_AsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var handled int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&handled, 1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2)))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), atomic.LoadInt32(&handled))
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u1", 2, 3)), ErrEventBusClosed)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next shared.EventHandler) shared.EventHandler {
			return func(e shared.Event) error {
				order = append(order, name)
				return next(e)
			}
		}
	}
	h := Chain(func(shared.Event) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(shared.NewLevelUpEvent("u1", 1, 2)))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := Chain(func(shared.Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}, TimeoutMiddleware(10*time.Millisecond))

	assert.Error(t, slow(shared.NewLevelUpEvent("u1", 1, 2)))
}

// fakeRedis loops published messages back to every subscriber.
type fakeRedis struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisEventBus_DeliversToOtherInstancesOnce(t *testing.T) {
	redis := &fakeRedis{}
	local := InMemoryEventBusConfig{AsyncMode: false}

	a, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "a", LocalBusConfig: local})
	require.NoError(t, err)
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "b", LocalBusConfig: local})
	require.NoError(t, err)

	var onA, onB int32
	got := make(chan string, 1)
	require.NoError(t, a.Subscribe(shared.EventAchievementUnlocked, func(shared.Event) error {
		atomic.AddInt32(&onA, 1)
		return nil
	}))
	require.NoError(t, b.Subscribe(shared.EventAchievementUnlocked, func(e shared.Event) error {
		atomic.AddInt32(&onB, 1)
		got <- shared.PayloadString(e, "achievement_type")
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewAchievementUnlockedEvent("u1", "first_session", "First Steps")))

	select {
	case typ := <-got:
		assert.Equal(t, "first_session", typ)
	case <-time.After(time.Second):
		t.Fatal("remote instance never received the event")
	}

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&onA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&onB))
}

func TestClaimMiddleware_OneInstanceHandles(t *testing.T) {
	claims := NewLocalClaimer()
	var sent int32
	handler := func(shared.Event) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}
	logger := slog.Default()
	onA := Chain(handler, ClaimMiddleware(claims, "achievement_email", time.Hour, logger))
	onB := Chain(handler, ClaimMiddleware(claims, "achievement_email", time.Hour, logger))

	event := shared.NewAchievementUnlockedEvent("u1", "first_session", "First Steps")
	require.NoError(t, onA(event))
	require.NoError(t, onB(event))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent))

	other := Chain(handler, ClaimMiddleware(claims, "audit", time.Hour, logger))
	require.NoError(t, other(event))
	assert.Equal(t, int32(2), atomic.LoadInt32(&sent))
}

func TestClaimMiddleware_ReleasesOnFailure(t *testing.T) {
	claims := NewLocalClaimer()
	calls := 0
	h := Chain(func(shared.Event) error {
		calls++
		if calls == 1 {
			return errors.New("smtp down")
		}
		return nil
	}, ClaimMiddleware(claims, "registration_email", time.Hour, slog.Default()))

	event := shared.NewRegistrationEvent(shared.EventRegistrationCreated, "r1", "u1", "s1", "registered")
	assert.Error(t, h(event))
	require.NoError(t, h(event))
	require.NoError(t, h(event))
	assert.Equal(t, 2, calls)
}

func TestLocalClaimer_Expires(t *testing.T) {
	claims := NewLocalClaimer()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	claims.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := claims.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = claims.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = claims.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}
