package jobs

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

type fakeStreaks struct {
	progression.StreakRepository

	streaks map[shared.ID]*progression.Streak
	failFor shared.ID
	pages   int
}

func newFakeStreaks(last time.Time, ids ...shared.ID) *fakeStreaks {
	f := &fakeStreaks{streaks: make(map[shared.ID]*progression.Streak)}
	for _, id := range ids {
		s := progression.NewStreak(id)
		s.Current, s.Longest = 3, 3
		day := last
		s.LastSessionDate = &day
		f.streaks[id] = s
	}
	return f
}

func (f *fakeStreaks) ListStale(_ context.Context, asOf time.Time, after shared.ID, limit int) ([]shared.ID, error) {
	f.pages++
	var ids []shared.ID
	for id, s := range f.streaks {
		if id > after && s.IsStale(asOf) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStreaks) ResetIfStale(_ context.Context, userID shared.ID, asOf time.Time) (*progression.Streak, bool, error) {
	if userID == f.failFor {
		return nil, false, errors.New("deadlock detected")
	}
	s := f.streaks[userID]
	return s, s.ResetIfStale(asOf), nil
}

func TestResetStaleStreaksJob_PagesThroughEveryUser(t *testing.T) {
	last := timeutil.Date(2025, time.March, 3)
	repo := newFakeStreaks(last, "u1", "u2", "u3", "u4", "u5")
	repo.failFor = "u4"

	job := NewResetStaleStreaksJob(repo, nil, ResetStaleStreaksConfig{BatchSize: 2})
	stats, err := job.RunAsOf(context.Background(), last.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Checked)
	assert.Equal(t, 4, stats.Reset)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, repo.streaks["u1"].Current)
	assert.Equal(t, 3, repo.streaks["u1"].Longest)
	assert.Equal(t, 3, repo.streaks["u4"].Current)
	assert.False(t, stats.CompletedAt.IsZero())
}

func TestResetStaleStreaksJob_KeepsStreakAliveOnNextDay(t *testing.T) {
	last := timeutil.Date(2025, time.March, 3)
	repo := newFakeStreaks(last, "u1")

	job := NewResetStaleStreaksJob(repo, nil, DefaultResetStaleStreaksConfig())
	stats, err := job.RunAsOf(context.Background(), last.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Zero(t, stats.Checked)
	assert.Equal(t, 3, repo.streaks["u1"].Current)
	assert.Equal(t, 1, repo.pages)
}

func TestResetStaleStreaksJob_RunUsesLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	timeutil.SetLocation(loc)
	defer timeutil.SetLocation(time.UTC)

	last := timeutil.Date(2024, time.June, 9)
	repo := newFakeStreaks(last, "u1")

	job := NewResetStaleStreaksJob(repo, nil, DefaultResetStaleStreaksConfig())
	// Midnight UTC on June 11 is the evening of June 10 in New York, one day
	// after the last session.
	job.now = func() time.Time { return time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, repo.streaks["u1"].Current)
}
