package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/pkg/timeutil"
)

func day(y int, m time.Month, d int) time.Time {
	return timeutil.Date(y, m, d)
}

func streakOn(current, longest int, last time.Time) Streak {
	return Streak{UserID: "u1", Current: current, Longest: longest, LastSessionDate: &last}
}

func TestNextStreak_FirstActivity(t *testing.T) {
	next, tr := NextStreak(Streak{UserID: "u1"}, day(2024, time.June, 10))

	assert.Equal(t, TransitionStarted, tr)
	assert.Equal(t, 1, next.Current)
	assert.Equal(t, 1, next.Longest)
	require.NotNil(t, next.LastSessionDate)
	assert.Equal(t, day(2024, time.June, 10), *next.LastSessionDate)
}

func TestNextStreak_TransitionTable(t *testing.T) {
	last := day(2024, time.June, 10)

	t.Run("same day keeps current", func(t *testing.T) {
		before := streakOn(3, 5, last)
		next, tr := NextStreak(before, time.Date(2024, 6, 10, 18, 45, 0, 0, time.UTC))
		assert.Equal(t, TransitionUnchanged, tr)
		assert.Equal(t, before.Current, next.Current)
		assert.Equal(t, before.Longest, next.Longest)
		assert.Equal(t, last, *next.LastSessionDate)
	})

	t.Run("next day increments", func(t *testing.T) {
		next, tr := NextStreak(streakOn(3, 5, last), day(2024, time.June, 11))
		assert.Equal(t, TransitionExtended, tr)
		assert.Equal(t, 4, next.Current)
		assert.Equal(t, 5, next.Longest)
		assert.Equal(t, day(2024, time.June, 11), *next.LastSessionDate)
	})

	t.Run("next day raises longest when exceeded", func(t *testing.T) {
		next, _ := NextStreak(streakOn(5, 5, last), day(2024, time.June, 11))
		assert.Equal(t, 6, next.Current)
		assert.Equal(t, 6, next.Longest)
	})

	t.Run("gap resets to one", func(t *testing.T) {
		next, tr := NextStreak(streakOn(4, 9, last), day(2024, time.June, 13))
		assert.Equal(t, TransitionRestarted, tr)
		assert.Equal(t, 1, next.Current)
		assert.Equal(t, 9, next.Longest)
		assert.Equal(t, day(2024, time.June, 13), *next.LastSessionDate)
	})

	t.Run("earlier date is ignored", func(t *testing.T) {
		before := streakOn(4, 9, last)
		next, tr := NextStreak(before, day(2024, time.June, 8))
		assert.Equal(t, TransitionIgnored, tr)
		assert.False(t, tr.Changed())
		assert.Equal(t, before.Current, next.Current)
		assert.Equal(t, last, *next.LastSessionDate)
	})
}

func TestNextStreak_DoesNotMutateInput(t *testing.T) {
	before := streakOn(2, 2, day(2024, time.June, 10))
	_, _ = NextStreak(before, day(2024, time.June, 11))

	assert.Equal(t, 2, before.Current)
	assert.Equal(t, day(2024, time.June, 10), *before.LastSessionDate)
}

func TestNextStreak_LongestNeverBelowCurrent(t *testing.T) {
	s := Streak{UserID: "u1"}
	start := day(2024, time.January, 1)
	offsets := []int{0, 1, 2, 2, 5, 6, 7, 8, 3, 20, 21}
	for _, off := range offsets {
		s, _ = NextStreak(s, start.AddDate(0, 0, off))
		assert.LessOrEqual(t, s.Current, s.Longest)
		assert.GreaterOrEqual(t, s.Current, 0)
	}
}

func TestStreak_ResetIfStale(t *testing.T) {
	s := streakOn(4, 6, day(2024, time.June, 10))

	assert.False(t, s.ResetIfStale(day(2024, time.June, 11)))
	assert.Equal(t, 4, s.Current)

	assert.True(t, s.ResetIfStale(day(2024, time.June, 12)))
	assert.Equal(t, 0, s.Current)
	assert.Equal(t, 6, s.Longest)

	// idempotent
	assert.False(t, s.ResetIfStale(day(2024, time.June, 20)))
	assert.Equal(t, 0, s.Current)
}

func TestStreak_ResetIfStaleWithoutActivity(t *testing.T) {
	s := NewStreak("u1")
	assert.False(t, s.ResetIfStale(day(2024, time.June, 20)))
}

func TestStreak_DaysUntilBreak(t *testing.T) {
	s := streakOn(2, 2, day(2024, time.June, 10))
	assert.Equal(t, 2, s.DaysUntilBreak(day(2024, time.June, 10)))
	assert.Equal(t, 1, s.DaysUntilBreak(day(2024, time.June, 11)))
	assert.Equal(t, 0, s.DaysUntilBreak(day(2024, time.June, 12)))
}

func TestStreakUpdate_Broken(t *testing.T) {
	prev := streakOn(3, 3, day(2024, time.June, 10))
	next, tr := NextStreak(prev, day(2024, time.June, 14))
	update := &StreakUpdate{Streak: &next, Previous: prev, Transition: tr}

	assert.True(t, update.Applied())
	assert.True(t, update.Broken())
}
