package progression

import (
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyStreakDays is the streak length behind the "On Fire" achievement.
const WeeklyStreakDays = 7

// Streak counts consecutive calendar days with confirmed activity.
// Invariant: 0 <= Current <= Longest.
type Streak struct {
	ID              shared.ID  `json:"id"`
	UserID          shared.ID  `json:"user_id"`
	Current         int        `json:"current_streak"`
	Longest         int        `json:"longest_streak"`
	LastSessionDate *time.Time `json:"last_session_date"` // calendar day, nil until the first activity
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewStreak creates an empty streak for a user.
func NewStreak(userID shared.ID) *Streak {
	return &Streak{
		ID:        shared.NewID(),
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Transition names the branch NextStreak took.
type Transition string

const (
	// TransitionStarted: no previous activity, streak begins at 1.
	TransitionStarted Transition = "started"
	// TransitionUnchanged: activity on the same day as the last one.
	TransitionUnchanged Transition = "unchanged"
	// TransitionExtended: activity on the day after the last one.
	TransitionExtended Transition = "extended"
	// TransitionRestarted: a gap of two or more days, streak restarts at 1.
	TransitionRestarted Transition = "restarted"
	// TransitionIgnored: activity dated before the last one. No-op.
	TransitionIgnored Transition = "ignored"
)

// Changed reports whether the transition modifies the stored record.
func (t Transition) Changed() bool {
	switch t {
	case TransitionStarted, TransitionExtended, TransitionRestarted:
		return true
	}
	return false
}

// NextStreak computes the streak after an activity on the date
// activityDate. The input is not modified.
func NextStreak(s Streak, activityDate time.Time) (Streak, Transition) {
	day := timeutil.DateOf(activityDate)
	next := s

	if s.LastSessionDate == nil {
		next.Current = 1
		if next.Longest < 1 {
			next.Longest = 1
		}
		next.LastSessionDate = &day
		return next, TransitionStarted
	}

	diff := timeutil.DaysBetween(*s.LastSessionDate, day)
	switch {
	case diff == 0:
		return next, TransitionUnchanged
	case diff == 1:
		next.Current = s.Current + 1
		if next.Current > next.Longest {
			next.Longest = next.Current
		}
		next.LastSessionDate = &day
		return next, TransitionExtended
	case diff > 1:
		next.Current = 1
		if next.Longest < 1 {
			next.Longest = 1
		}
		next.LastSessionDate = &day
		return next, TransitionRestarted
	default:
		return next, TransitionIgnored
	}
}

// IsStale reports whether more than one calendar day passed between the
// last activity and asOf while the streak is still running.
func (s Streak) IsStale(asOf time.Time) bool {
	if s.LastSessionDate == nil || s.Current == 0 {
		return false
	}
	return timeutil.DaysBetween(*s.LastSessionDate, asOf) > 1
}

// ResetIfStale zeroes Current when the streak is stale. Longest and the
// last date are kept. Returns whether anything changed.
func (s *Streak) ResetIfStale(asOf time.Time) bool {
	if !s.IsStale(asOf) {
		return false
	}
	s.Current = 0
	s.UpdatedAt = time.Now().UTC()
	return true
}

// DaysUntilBreak returns how many days are left before the streak breaks,
// 0 when it is already broken or never started.
func (s Streak) DaysUntilBreak(asOf time.Time) int {
	if s.LastSessionDate == nil || s.Current == 0 {
		return 0
	}
	left := 2 - timeutil.DaysBetween(*s.LastSessionDate, asOf)
	if left < 0 {
		return 0
	}
	return left
}

// StreakUpdate is the outcome of recording one activity.
type StreakUpdate struct {
	Streak     *Streak
	Previous   Streak
	Transition Transition
}

// Applied reports whether the activity changed the stored streak.
func (u *StreakUpdate) Applied() bool {
	return u.Transition.Changed()
}

// Broken reports whether a running streak was restarted by this activity.
func (u *StreakUpdate) Broken() bool {
	return u.Transition == TransitionRestarted && u.Previous.Current > 0
}
