package progression

import (
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementType identifies a catalog entry. Values are persisted.
type AchievementType string

const (
	AchievementFirstSession      AchievementType = "first_session"
	AchievementFiveSessions      AchievementType = "five_sessions"
	AchievementTenSessions       AchievementType = "ten_sessions"
	AchievementLevel5            AchievementType = "level_5"
	AchievementLevel10           AchievementType = "level_10"
	AchievementWeeklyStreak      AchievementType = "weekly_streak"
	AchievementPerfectAttendance AchievementType = "perfect_attendance"
)

// String returns the string representation.
func (t AchievementType) String() string {
	return string(t)
}

// IsValid checks if the type is in the catalog.
func (t AchievementType) IsValid() bool {
	_, ok := LookupAchievement(t)
	return ok
}

// Metric is the progression counter a trigger looks at.
type Metric string

const (
	MetricSessionCount Metric = "session_count"
	MetricLevel        Metric = "level"
	MetricStreak       Metric = "streak"
)

// Trigger unlocks an achievement once Metric reaches Threshold.
// A zero Trigger never fires; such achievements are awarded explicitly.
type Trigger struct {
	Metric    Metric
	Threshold int
}

// Automatic reports whether the trigger is evaluated by CheckAndUnlock.
func (t Trigger) Automatic() bool {
	return t.Metric != "" && t.Threshold > 0
}

// AchievementDefinition is one row of the static catalog.
type AchievementDefinition struct {
	Type        AchievementType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Emoji       string          `json:"emoji"`
	BadgeColor  string          `json:"badge_color"`
	Trigger     Trigger         `json:"-"`
}

// catalog is ordered by display priority.
var catalog = []AchievementDefinition{
	{
		Type:        AchievementFirstSession,
		Title:       "First Steps",
		Description: "Registered for your first PD session",
		Emoji:       "🎓",
		BadgeColor:  "#3b82f6",
		Trigger:     Trigger{Metric: MetricSessionCount, Threshold: 1},
	},
	{
		Type:        AchievementFiveSessions,
		Title:       "Learner",
		Description: "Registered for 5 PD sessions",
		Emoji:       "📚",
		BadgeColor:  "#8b5cf6",
		Trigger:     Trigger{Metric: MetricSessionCount, Threshold: 5},
	},
	{
		Type:        AchievementTenSessions,
		Title:       "Scholar",
		Description: "Registered for 10 PD sessions",
		Emoji:       "🏆",
		BadgeColor:  "#ec4899",
		Trigger:     Trigger{Metric: MetricSessionCount, Threshold: 10},
	},
	{
		Type:        AchievementLevel5,
		Title:       "Rising Star",
		Description: "Reached level 5",
		Emoji:       "⭐",
		BadgeColor:  "#f59e0b",
		Trigger:     Trigger{Metric: MetricLevel, Threshold: 5},
	},
	{
		Type:        AchievementLevel10,
		Title:       "Master",
		Description: "Reached level 10",
		Emoji:       "👑",
		BadgeColor:  "#fbbf24",
		Trigger:     Trigger{Metric: MetricLevel, Threshold: 10},
	},
	{
		Type:        AchievementWeeklyStreak,
		Title:       "On Fire",
		Description: "Maintained a 7-day attendance streak",
		Emoji:       "🔥",
		BadgeColor:  "#ef4444",
		Trigger:     Trigger{Metric: MetricStreak, Threshold: WeeklyStreakDays},
	},
	{
		Type:        AchievementPerfectAttendance,
		Title:       "Perfect",
		Description: "Attended all offered sessions in a month",
		Emoji:       "⚡",
		BadgeColor:  "#10b981",
	},
}

var catalogIndex = func() map[AchievementType]int {
	idx := make(map[AchievementType]int, len(catalog))
	for i, def := range catalog {
		idx[def.Type] = i
	}
	return idx
}()

// Catalog returns a copy of every achievement definition.
func Catalog() []AchievementDefinition {
	out := make([]AchievementDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// LookupAchievement returns the definition for a type.
func LookupAchievement(t AchievementType) (AchievementDefinition, bool) {
	i, ok := catalogIndex[t]
	if !ok {
		return AchievementDefinition{}, false
	}
	return catalog[i], true
}

// Milestones is the progression state achievements are evaluated against.
type Milestones struct {
	SessionCount int
	Level        Level
	Streak       int
}

func (m Milestones) value(metric Metric) int {
	switch metric {
	case MetricSessionCount:
		return m.SessionCount
	case MetricLevel:
		return m.Level.Int()
	case MetricStreak:
		return m.Streak
	}
	return 0
}

// EligibleAchievements returns every automatic achievement whose threshold
// is reached by m, in catalog order. Thresholds are inclusive (>=): a count
// that jumps past an exact value still earns the achievement, and the
// idempotent unlock keeps repeats harmless.
func EligibleAchievements(m Milestones) []AchievementType {
	var out []AchievementType
	for _, def := range catalog {
		if !def.Trigger.Automatic() {
			continue
		}
		if m.value(def.Trigger.Metric) >= def.Trigger.Threshold {
			out = append(out, def.Type)
		}
	}
	return out
}

// Achievement is one unlock in the ledger. Immutable once created.
type Achievement struct {
	ID         shared.ID       `json:"id"`
	UserID     shared.ID       `json:"user_id"`
	Type       AchievementType `json:"achievement_type"`
	UnlockedAt time.Time       `json:"unlocked_at"`
}

// NewAchievement validates the type and stamps the unlock time.
func NewAchievement(userID shared.ID, t AchievementType) (*Achievement, error) {
	if !t.IsValid() {
		return nil, shared.ErrUnknownAchievement
	}
	return &Achievement{
		ID:         shared.NewID(),
		UserID:     userID,
		Type:       t,
		UnlockedAt: time.Now().UTC(),
	}, nil
}

// Definition returns the catalog entry of the unlock.
func (a Achievement) Definition() AchievementDefinition {
	def, _ := LookupAchievement(a.Type)
	return def
}
