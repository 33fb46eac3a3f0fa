package progression

import (
	"strings"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PET
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultPetName is used when a pet is provisioned lazily.
	DefaultPetName = "My Pet"

	// DefaultPetType is used when a pet is provisioned lazily.
	DefaultPetType = "companion"

	// MaxPetNameLength limits display names.
	MaxPetNameLength = 50
)

// Pet is the per-user progression record.
type Pet struct {
	ID                    shared.ID `json:"id"`
	UserID                shared.ID `json:"user_id"`
	Name                  string    `json:"name"`
	PetType               string    `json:"pet_type"`
	Level                 Level     `json:"level"`
	Experience            int       `json:"experience"`
	TotalSessionsAttended int       `json:"total_sessions_attended"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// NewPet creates a level 1 pet with no experience. Empty name and type fall
// back to the defaults.
func NewPet(userID shared.ID, name, petType string) (*Pet, error) {
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("progression", "NewPet", shared.ErrEmptyValue, "user id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultPetName
	}
	if len(name) > MaxPetNameLength {
		return nil, shared.NewDomainError("progression", "NewPet", shared.ErrValueOutOfRange, "pet name is too long")
	}
	petType = strings.TrimSpace(petType)
	if petType == "" {
		petType = DefaultPetType
	}

	now := time.Now().UTC()
	return &Pet{
		ID:         shared.NewID(),
		UserID:     userID,
		Name:       name,
		PetType:    petType,
		Level:      MinLevel,
		Experience: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GainExperience adds a positive amount and recomputes the level.
// It returns the level held before the gain.
func (p *Pet) GainExperience(amount int) (Level, error) {
	if amount <= 0 {
		return p.Level, shared.ErrInvalidExperience
	}
	previous := p.Level
	p.Experience += amount
	p.Level = LevelFor(p.Experience)
	p.UpdatedAt = time.Now().UTC()
	return previous, nil
}

// Rename changes the display name.
func (p *Pet) Rename(name string) error {
	name, err := ValidatePetName(name)
	if err != nil {
		return err
	}
	p.Name = name
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidatePetName trims and checks a display name.
func ValidatePetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.ErrEmptyPetName
	}
	if len(name) > MaxPetNameLength {
		return "", shared.NewDomainError("progression", "RenamePet", shared.ErrValueOutOfRange, "pet name is too long")
	}
	return name, nil
}

// Progress summarises where the pet stands inside its level.
type Progress struct {
	TotalXP         int     `json:"total_xp"`
	CurrentLevel    int     `json:"current_level"`
	NextLevelXP     int     `json:"next_level_xp"`
	ProgressPercent float64 `json:"progress_percent"`
}

// Progress computes the level summary from the stored experience.
func (p *Pet) Progress() Progress {
	return Progress{
		TotalXP:         p.Experience,
		CurrentLevel:    p.Level.Int(),
		NextLevelXP:     XPToNextLevel(p.Experience, p.Level),
		ProgressPercent: ProgressPercent(p.Experience, p.Level),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

// ExperienceReason says why experience was granted.
type ExperienceReason string

const (
	ReasonRegistration ExperienceReason = "registration"
	ReasonAttendance   ExperienceReason = "attendance"
	ReasonInteraction  ExperienceReason = "interaction"
)

// IsValid checks if the reason is known.
func (r ExperienceReason) IsValid() bool {
	switch r {
	case ReasonRegistration, ReasonAttendance, ReasonInteraction:
		return true
	}
	return false
}

// String returns the string representation.
func (r ExperienceReason) String() string {
	return string(r)
}

// ExperienceGrant is one request to add experience to a pet.
type ExperienceGrant struct {
	PetID     shared.ID
	Amount    int
	Reason    ExperienceReason
	SessionID shared.ID // optional
}

// Validate checks the grant before it reaches storage.
func (g ExperienceGrant) Validate() error {
	if g.PetID.IsEmpty() {
		return shared.NewDomainError("progression", "AddExperience", shared.ErrEmptyValue, "pet id is required")
	}
	if g.Amount <= 0 {
		return shared.ErrInvalidExperience
	}
	if !g.Reason.IsValid() {
		return shared.ErrInvalidReason
	}
	return nil
}

// ExperienceResult is the outcome of an applied grant.
type ExperienceResult struct {
	Pet           *Pet
	PreviousLevel Level
	Entry         ExperienceEntry
}

// LeveledUp reports whether the grant moved the pet up a level.
func (r *ExperienceResult) LeveledUp() bool {
	return r.Pet != nil && r.Pet.Level > r.PreviousLevel
}

// ExperienceEntry is one append-only log row.
type ExperienceEntry struct {
	ID        shared.ID        `json:"id"`
	PetID     shared.ID        `json:"pet_id"`
	Amount    int              `json:"amount"`
	Reason    ExperienceReason `json:"reason"`
	SessionID shared.ID        `json:"session_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

const (
	// DefaultHistoryLimit is the page size for experience history.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history read.
	MaxHistoryLimit = 200
)

// NormalizeHistoryLimit applies the default and the cap.
func NormalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
