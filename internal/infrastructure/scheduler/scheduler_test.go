package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job" }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler_RegisterRejectsDuplicates(t *testing.T) {
	s := New(Config{})
	job := funcJob{name: "a", run: func(context.Context) error { return nil }}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(funcJob{name: "b"}, nil), ErrNilSchedule)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	s := New(Config{})
	boom := errors.New("boom")
	require.NoError(t, s.Register(funcJob{name: "ok", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(funcJob{name: "bad", run: func(context.Context) error { return boom }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(funcJob{name: "panics", run: func(context.Context) error { panic("nil map") }}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(context.Background(), "panics")
	assert.Error(t, err)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(2)
	require.Len(t, history, 2)
	assert.Equal(t, "panics", history[0].JobName)
	assert.Equal(t, "bad", history[1].JobName)

	jobs := s.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].FailCount)
}

func TestScheduler_DueJobDoesNotOverlap(t *testing.T) {
	s := New(Config{TickInterval: 5 * time.Millisecond})
	var active, maxActive, runs int32
	release := make(chan struct{})

	job := funcJob{name: "slow", run: func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		atomic.AddInt32(&runs, 1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		atomic.AddInt32(&active, -1)
		return nil
	}}
	require.NoError(t, s.Register(job, &IntervalSchedule{Interval: time.Millisecond}))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, s.Stop())
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestCronExpression_Next(t *testing.T) {
	expr, err := ParseCronExpression("15 0 * * *")
	require.NoError(t, err)

	from := time.Date(2025, time.March, 3, 0, 20, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 4, 0, 15, 0, 0, time.UTC), expr.Next(from))

	_, err = ParseCronExpression("* * *")
	assert.Error(t, err)
}

func TestParseCronExpression_Fields(t *testing.T) {
	expr, err := ParseCronExpression("0,30 9-17/4 * * 1-5")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 30}, expr.minutes)
	assert.Equal(t, []int{9, 13, 17}, expr.hours)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, expr.weekdays)

	for _, bad := range []string{"60 * * * *", "* 5-2 * * *", "*/0 * * * *", "a * * * *"} {
		_, err := ParseCronExpression(bad)
		assert.Error(t, err, bad)
	}

	never, err := ParseCronExpression("0 0 31 2 *")
	require.NoError(t, err)
	assert.True(t, never.Next(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestParseSchedule(t *testing.T) {
	every, err := ParseSchedule("@every 6h")
	require.NoError(t, err)
	assert.Equal(t, "@every 6h0m0s", every.String())
	from := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(6*time.Hour), every.Next(from))

	floor, err := ParseSchedule("@every 10ms")
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Second), floor.Next(from))

	cron, err := ParseSchedule(" 15 0 * * * ")
	require.NoError(t, err)
	assert.IsType(t, &CronExpression{}, cron)

	_, err = ParseSchedule("@every soon")
	assert.Error(t, err)
	_, err = ParseSchedule("@daily")
	assert.Error(t, err)
}
