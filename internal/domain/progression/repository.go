package progression

import (
	"context"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// PetRepository stores pets and their experience log.
// AddExperience must apply the increment, the log row and the recomputed
// level in one transaction.
type PetRepository interface {
	// GetByUser returns shared.ErrPetNotFound when the user has no pet.
	GetByUser(ctx context.Context, userID shared.ID) (*Pet, error)

	GetByID(ctx context.Context, petID shared.ID) (*Pet, error)

	// Create fails with shared.ErrPetAlreadyExists if the user has a pet.
	Create(ctx context.Context, pet *Pet) error

	// GetOrCreate provisions a default pet, re-fetching when a concurrent
	// call won the insert.
	GetOrCreate(ctx context.Context, userID shared.ID) (*Pet, error)

	AddExperience(ctx context.Context, grant ExperienceGrant) (*ExperienceResult, error)

	Rename(ctx context.Context, petID shared.ID, name string) (*Pet, error)

	IncrementSessionsAttended(ctx context.Context, petID shared.ID) (*Pet, error)

	// ExperienceHistory returns log entries newest first.
	ExperienceHistory(ctx context.Context, petID shared.ID, limit int) ([]ExperienceEntry, error)
}

// StreakRepository stores streaks. RecordActivity locks the row for the
// whole read-compute-write cycle.
type StreakRepository interface {
	GetByUser(ctx context.Context, userID shared.ID) (*Streak, error)

	GetOrCreate(ctx context.Context, userID shared.ID) (*Streak, error)

	RecordActivity(ctx context.Context, userID shared.ID, activityDate time.Time) (*StreakUpdate, error)

	// ResetIfStale zeroes the current streak when asOf is more than one day
	// past the last activity. The bool reports whether a reset happened.
	ResetIfStale(ctx context.Context, userID shared.ID, asOf time.Time) (*Streak, bool, error)

	// ListStale pages through users whose running streak is stale as of
	// asOf, ordered by user id, starting after afterUserID.
	ListStale(ctx context.Context, asOf time.Time, afterUserID shared.ID, limit int) ([]shared.ID, error)
}

// AchievementRepository is the unlock ledger.
type AchievementRepository interface {
	// Unlock inserts one unlock. The bool is false when it already existed.
	Unlock(ctx context.Context, userID shared.ID, t AchievementType) (*Achievement, bool, error)

	// CheckAndUnlock evaluates EligibleAchievements and returns only the
	// unlocks inserted by this call.
	CheckAndUnlock(ctx context.Context, userID shared.ID, m Milestones) ([]Achievement, error)

	// ListByUser returns unlocks newest first.
	ListByUser(ctx context.Context, userID shared.ID) ([]Achievement, error)

	Has(ctx context.Context, userID shared.ID, t AchievementType) (bool, error)
}
