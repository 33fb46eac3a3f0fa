// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SUMMARY
// Everything the dashboard shows about a user's progression. Every field is
// read from the store on each call.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressSummary is the user's progression at a glance.
type ProgressSummary struct {
	Pet          *progression.Pet  `json:"pet"`
	Streak       StreakView        `json:"streak"`
	Achievements []AchievementView `json:"achievements"`
	Summary      ProgressNumbers   `json:"summary"`
}

// ProgressNumbers are the derived numbers of a summary.
type ProgressNumbers struct {
	TotalXP         int     `json:"total_xp"`
	CurrentLevel    int     `json:"current_level"`
	NextLevelXP     int     `json:"next_level_xp"`
	ProgressPercent float64 `json:"progress_percent"`
	SessionCount    int     `json:"session_count"`
}

// StreakView is a streak as shown to its owner. Current is 0 once the
// streak is stale, even before the nightly job has reset it.
type StreakView struct {
	Current         int     `json:"current_streak"`
	Longest         int     `json:"longest_streak"`
	LastSessionDate *string `json:"last_session_date"`
	DaysUntilBreak  int     `json:"days_until_break"`
}

// AchievementView is an unlock joined with its catalog entry.
type AchievementView struct {
	progression.AchievementDefinition
	UnlockedAt time.Time `json:"unlocked_at"`
}

// GetProgressSummaryHandler builds ProgressSummary, provisioning the pet
// and streak on first access.
type GetProgressSummaryHandler struct {
	pets          progression.PetRepository
	streaks       progression.StreakRepository
	achievements  progression.AchievementRepository
	registrations registration.Repository
}

// NewGetProgressSummaryHandler creates a new GetProgressSummaryHandler.
func NewGetProgressSummaryHandler(
	pets progression.PetRepository,
	streaks progression.StreakRepository,
	achievements progression.AchievementRepository,
	registrations registration.Repository,
) *GetProgressSummaryHandler {
	return &GetProgressSummaryHandler{
		pets:          pets,
		streaks:       streaks,
		achievements:  achievements,
		registrations: registrations,
	}
}

// Handle returns the summary for userID.
func (h *GetProgressSummaryHandler) Handle(ctx context.Context, userID shared.ID) (*ProgressSummary, error) {
	pet, err := h.pets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress summary: pet: %w", err)
	}
	streak, err := h.streaks.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress summary: streak: %w", err)
	}
	unlocks, err := h.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress summary: achievements: %w", err)
	}
	count, err := h.registrations.CountForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress summary: session count: %w", err)
	}

	return &ProgressSummary{
		Pet:          pet,
		Streak:       NewStreakView(*streak, timeutil.Today()),
		Achievements: NewAchievementViews(unlocks),
		Summary: ProgressNumbers{
			TotalXP:         pet.Experience,
			CurrentLevel:    pet.Level.Int(),
			NextLevelXP:     progression.XPToNextLevel(pet.Experience, pet.Level),
			ProgressPercent: progression.ProgressPercent(pet.Experience, pet.Level),
			SessionCount:    count,
		},
	}, nil
}

// NewStreakView renders a streak as of the given day.
func NewStreakView(s progression.Streak, asOf time.Time) StreakView {
	v := StreakView{
		Current:        s.Current,
		Longest:        s.Longest,
		DaysUntilBreak: s.DaysUntilBreak(asOf),
	}
	if s.IsStale(asOf) {
		v.Current = 0
	}
	if s.LastSessionDate != nil {
		d := timeutil.FormatDateStr(*s.LastSessionDate)
		v.LastSessionDate = &d
	}
	return v
}

// NewAchievementViews joins unlocks with the catalog.
func NewAchievementViews(unlocks []progression.Achievement) []AchievementView {
	views := make([]AchievementView, 0, len(unlocks))
	for _, a := range unlocks {
		views = append(views, AchievementView{
			AchievementDefinition: a.Definition(),
			UnlockedAt:            a.UnlockedAt,
		})
	}
	return views
}
