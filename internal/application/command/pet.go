package command

import (
	"context"
	"fmt"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/metrics"
)

// RenamePetCommand renames the caller's pet.
type RenamePetCommand struct {
	UserID shared.ID
	Name   string
}

// RenamePetHandler handles RenamePetCommand. The pet is provisioned first
// so renaming works before any experience was earned.
type RenamePetHandler struct {
	pets progression.PetRepository
}

// NewRenamePetHandler creates a new RenamePetHandler.
func NewRenamePetHandler(pets progression.PetRepository) *RenamePetHandler {
	return &RenamePetHandler{pets: pets}
}

// Handle renames the pet.
func (h *RenamePetHandler) Handle(ctx context.Context, cmd RenamePetCommand) (*progression.Pet, error) {
	name, err := progression.ValidatePetName(cmd.Name)
	if err != nil {
		return nil, err
	}
	pet, err := h.pets.GetOrCreate(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("rename pet: %w", err)
	}
	return h.pets.Rename(ctx, pet.ID, name)
}

// GrantExperienceCommand grants interaction experience to the caller's pet.
type GrantExperienceCommand struct {
	UserID shared.ID
	Amount int
}

// GrantExperienceHandler handles GrantExperienceCommand.
type GrantExperienceHandler struct {
	progressor *Progressor
}

// NewGrantExperienceHandler creates a new GrantExperienceHandler.
func NewGrantExperienceHandler(progressor *Progressor) *GrantExperienceHandler {
	return &GrantExperienceHandler{progressor: progressor}
}

// Handle grants the experience. Unlike registration progression, a failure
// here is the request's failure.
func (h *GrantExperienceHandler) Handle(ctx context.Context, cmd GrantExperienceCommand) (*ProgressionOutcome, error) {
	return h.progressor.Interact(ctx, cmd.UserID, cmd.Amount)
}

// AwardAchievementCommand unlocks an achievement by hand, typically the
// manual-only "perfect_attendance".
type AwardAchievementCommand struct {
	UserID shared.ID
	Type   progression.AchievementType
}

// AwardAchievementResult reports whether the award was new.
type AwardAchievementResult struct {
	Achievement *progression.Achievement `json:"achievement,omitempty"`
	Awarded     bool                     `json:"awarded"`
}

// AwardAchievementHandler handles AwardAchievementCommand.
type AwardAchievementHandler struct {
	achievements progression.AchievementRepository
	publisher    shared.EventPublisher
}

// NewAwardAchievementHandler creates a new AwardAchievementHandler.
func NewAwardAchievementHandler(achievements progression.AchievementRepository, publisher shared.EventPublisher) *AwardAchievementHandler {
	return &AwardAchievementHandler{achievements: achievements, publisher: publisher}
}

// Handle unlocks the achievement. Awarding one the user already holds is
// not an error.
func (h *AwardAchievementHandler) Handle(ctx context.Context, cmd AwardAchievementCommand) (*AwardAchievementResult, error) {
	if !cmd.UserID.IsValid() {
		return nil, shared.NewDomainError("progression", "Award", shared.ErrInvalidID, "user_id is invalid")
	}
	a, inserted, err := h.achievements.Unlock(ctx, cmd.UserID, cmd.Type)
	if err != nil {
		return nil, fmt.Errorf("award achievement: %w", err)
	}
	if inserted {
		metrics.AchievementsUnlockedTotal.WithLabelValues(a.Type.String()).Inc()
		if h.publisher != nil {
			_ = h.publisher.Publish(shared.NewAchievementUnlockedEvent(cmd.UserID.String(), a.Type.String(), a.Definition().Title))
		}
	}
	return &AwardAchievementResult{Achievement: a, Awarded: inserted}, nil
}
