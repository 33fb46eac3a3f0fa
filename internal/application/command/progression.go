// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// Experience, streak and achievement side effects of registrations,
// attendance and pet interactions. Each step is its own unit of work: a
// failure stops the remaining steps but never undoes the ones before it.
// ══════════════════════════════════════════════════════════════════════════════

// ErrProgressionDisabled is returned by explicit grants while progression
// is switched off.
var ErrProgressionDisabled = shared.NewDomainError("progression", "Interact", shared.ErrServiceUnavailable, "progression is currently disabled")

// ProgressionConfig holds the experience amounts granted per activity.
type ProgressionConfig struct {
	RegistrationXP   int
	AttendanceXP     int
	MaxInteractionXP int
}

// DefaultProgressionConfig returns the production amounts.
func DefaultProgressionConfig() ProgressionConfig {
	return ProgressionConfig{
		RegistrationXP:   10,
		AttendanceXP:     25,
		MaxInteractionXP: 50,
	}
}

// ProgressionOutcome reports what one progression run changed.
type ProgressionOutcome struct {
	Pet              *progression.Pet          `json:"pet,omitempty"`
	ExperienceGained int                       `json:"experience_gained"`
	PreviousLevel    progression.Level         `json:"previous_level"`
	LeveledUp        bool                      `json:"leveled_up"`
	Streak           *progression.Streak       `json:"streak,omitempty"`
	StreakTransition progression.Transition    `json:"streak_transition,omitempty"`
	SessionCount     int                       `json:"session_count"`
	Unlocked         []progression.Achievement `json:"unlocked,omitempty"`
}

// Progressor applies progression side effects and publishes their events.
type Progressor struct {
	pets          progression.PetRepository
	streaks       progression.StreakRepository
	achievements  progression.AchievementRepository
	registrations registration.Repository
	publisher     shared.EventPublisher
	logger        *slog.Logger
	config        ProgressionConfig
	enabled       func() bool
}

// NewProgressor creates a Progressor. A zero config falls back to the
// defaults.
func NewProgressor(
	pets progression.PetRepository,
	streaks progression.StreakRepository,
	achievements progression.AchievementRepository,
	registrations registration.Repository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config ProgressionConfig,
) *Progressor {
	if config == (ProgressionConfig{}) {
		config = DefaultProgressionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Progressor{
		pets:          pets,
		streaks:       streaks,
		achievements:  achievements,
		registrations: registrations,
		publisher:     publisher,
		logger:        logger.With("component", "progression"),
		config:        config,
	}
}

// SetToggle makes progression conditional on enabled, checked on every
// run. A nil toggle means always on.
func (p *Progressor) SetToggle(enabled func() bool) {
	p.enabled = enabled
}

// Enabled reports whether progression currently runs.
func (p *Progressor) Enabled() bool {
	return p.enabled == nil || p.enabled()
}

// Config returns the amounts in use.
func (p *Progressor) Config() ProgressionConfig {
	return p.config
}

// AfterRegistration grants registration experience and evaluates
// achievements against the new session count. It returns nil, nil while
// progression is switched off.
func (p *Progressor) AfterRegistration(ctx context.Context, userID, sessionID shared.ID) (*ProgressionOutcome, error) {
	if !p.Enabled() {
		return nil, nil
	}
	out := &ProgressionOutcome{}

	pet, err := p.provisionPet(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Pet = pet

	if err := p.grant(ctx, out, userID, progression.ExperienceGrant{
		PetID:     pet.ID,
		Amount:    p.config.RegistrationXP,
		Reason:    progression.ReasonRegistration,
		SessionID: sessionID,
	}); err != nil {
		return out, err
	}

	return out, p.unlock(ctx, out, userID, nil)
}

// AfterAttendance counts the attended session, extends the streak on the
// session's calendar day, grants attendance experience and evaluates
// achievements.
func (p *Progressor) AfterAttendance(ctx context.Context, userID, sessionID shared.ID, sessionDate time.Time) (*ProgressionOutcome, error) {
	if !p.Enabled() {
		return nil, nil
	}
	out := &ProgressionOutcome{}

	pet, err := p.provisionPet(ctx, userID)
	if err != nil {
		return out, err
	}
	if pet, err = p.pets.IncrementSessionsAttended(ctx, pet.ID); err != nil {
		return out, p.fail("attendance_count", err)
	}
	out.Pet = pet

	update, err := p.streaks.RecordActivity(ctx, userID, sessionDate)
	if err != nil {
		return out, p.fail("streak", err)
	}
	out.Streak = update.Streak
	out.StreakTransition = update.Transition
	if update.Applied() {
		p.publish(shared.NewStreakUpdatedEvent(userID.String(),
			update.Streak.Current, update.Streak.Longest, update.Previous.Current, update.Broken()))
	}

	if err := p.grant(ctx, out, userID, progression.ExperienceGrant{
		PetID:     pet.ID,
		Amount:    p.config.AttendanceXP,
		Reason:    progression.ReasonAttendance,
		SessionID: sessionID,
	}); err != nil {
		return out, err
	}

	return out, p.unlock(ctx, out, userID, update.Streak)
}

// Interact grants interaction experience, capped at MaxInteractionXP.
func (p *Progressor) Interact(ctx context.Context, userID shared.ID, amount int) (*ProgressionOutcome, error) {
	if !p.Enabled() {
		return nil, ErrProgressionDisabled
	}
	if amount <= 0 {
		return nil, shared.ErrInvalidExperience
	}
	if amount > p.config.MaxInteractionXP {
		return nil, shared.NewDomainError("progression", "Interact", shared.ErrValueOutOfRange,
			fmt.Sprintf("at most %d experience per interaction", p.config.MaxInteractionXP))
	}

	out := &ProgressionOutcome{}
	pet, err := p.provisionPet(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Pet = pet

	if err := p.grant(ctx, out, userID, progression.ExperienceGrant{
		PetID:  pet.ID,
		Amount: amount,
		Reason: progression.ReasonInteraction,
	}); err != nil {
		return out, err
	}
	return out, p.unlock(ctx, out, userID, nil)
}

func (p *Progressor) provisionPet(ctx context.Context, userID shared.ID) (*progression.Pet, error) {
	pet, err := p.pets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, p.fail("provision_pet", err)
	}
	return pet, nil
}

func (p *Progressor) grant(ctx context.Context, out *ProgressionOutcome, userID shared.ID, g progression.ExperienceGrant) error {
	res, err := p.pets.AddExperience(ctx, g)
	if err != nil {
		return p.fail("experience", err)
	}
	metrics.ExperienceGrantedTotal.WithLabelValues(g.Reason.String()).Add(float64(g.Amount))

	out.Pet = res.Pet
	out.ExperienceGained += g.Amount
	out.PreviousLevel = res.PreviousLevel
	out.LeveledUp = res.LeveledUp()

	p.publish(shared.NewXPGainedEvent(userID.String(), res.Pet.ID.String(),
		g.Amount, res.Pet.Experience, g.Reason.String(), g.SessionID.String()))
	if res.LeveledUp() {
		p.publish(shared.NewLevelUpEvent(userID.String(), res.PreviousLevel.Int(), res.Pet.Level.Int()))
	}
	return nil
}

// unlock evaluates achievements. streak may be nil, in which case the
// stored streak is read.
func (p *Progressor) unlock(ctx context.Context, out *ProgressionOutcome, userID shared.ID, streak *progression.Streak) error {
	count, err := p.registrations.CountForUser(ctx, userID)
	if err != nil {
		return p.fail("session_count", err)
	}
	out.SessionCount = count

	if streak == nil {
		if streak, err = p.streaks.GetOrCreate(ctx, userID); err != nil {
			return p.fail("streak", err)
		}
		out.Streak = streak
	}

	unlocked, err := p.achievements.CheckAndUnlock(ctx, userID, progression.Milestones{
		SessionCount: count,
		Level:        out.Pet.Level,
		Streak:       streak.Current,
	})
	out.Unlocked = append(out.Unlocked, unlocked...)
	for _, a := range unlocked {
		metrics.AchievementsUnlockedTotal.WithLabelValues(a.Type.String()).Inc()
		p.publish(shared.NewAchievementUnlockedEvent(userID.String(), a.Type.String(), a.Definition().Title))
	}
	if err != nil {
		return p.fail("achievements", err)
	}
	return nil
}

func (p *Progressor) fail(step string, err error) error {
	metrics.ProgressionFailuresTotal.WithLabelValues(step).Inc()
	return fmt.Errorf("progression %s: %w", step, err)
}

func (p *Progressor) publish(event shared.Event) {
	publish(p.publisher, p.logger, event)
}
