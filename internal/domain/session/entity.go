// Package session models schedulable PD sessions.
package session

import (
	"strings"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the publication status of a session.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusFull      Status = "full"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// allowedTransitions lists admin-driven status changes.
var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusCancelled},
	StatusPublished: {StatusFull, StatusCompleted, StatusCancelled},
	StatusFull:      {StatusPublished, StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo checks if an admin may move the session to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is a schedulable PD event. Capacity nil means unlimited.
type Session struct {
	ID            shared.ID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	PresenterName string    `json:"presenter_name,omitempty"`
	SessionDate   time.Time `json:"session_date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Capacity      *int      `json:"capacity,omitempty"`
	Status        Status    `json:"status"`
	CreatedBy     shared.ID `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSessionParams holds the fields an admin supplies.
type NewSessionParams struct {
	Title         string
	Description   string
	Location      string
	PresenterName string
	SessionDate   time.Time
	StartTime     string // HH:MM
	EndTime       string // HH:MM
	Capacity      *int
	Publish       bool
	CreatedBy     shared.ID
}

// NewSession validates params and creates a draft, or a published session
// when Publish is set.
func NewSession(p NewSessionParams) (*Session, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" || p.SessionDate.IsZero() || p.StartTime == "" || p.EndTime == "" {
		return nil, shared.ErrMissingSessionField
	}
	start, err := timeutil.ParseClock(p.StartTime)
	if err != nil {
		return nil, shared.WrapError("session", "Validate", shared.ErrInvalidFormat, "start time must be HH:MM", err)
	}
	end, err := timeutil.ParseClock(p.EndTime)
	if err != nil {
		return nil, shared.WrapError("session", "Validate", shared.ErrInvalidFormat, "end time must be HH:MM", err)
	}
	if end <= start {
		return nil, shared.ErrInvalidSessionTime
	}
	if p.Capacity != nil && *p.Capacity <= 0 {
		return nil, shared.ErrInvalidCapacity
	}

	status := StatusDraft
	if p.Publish {
		status = StatusPublished
	}
	now := time.Now().UTC()
	return &Session{
		ID:            shared.NewID(),
		Title:         title,
		Description:   strings.TrimSpace(p.Description),
		Location:      strings.TrimSpace(p.Location),
		PresenterName: strings.TrimSpace(p.PresenterName),
		SessionDate:   timeutil.DateOf(p.SessionDate),
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Capacity:      p.Capacity,
		Status:        status,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsPublished reports whether the session accepts registrations.
func (s *Session) IsPublished() bool {
	return s.Status == StatusPublished
}

// HasCapacityFor reports whether one more seat is available given the
// number of active registrations.
func (s *Session) HasCapacityFor(activeCount int) bool {
	if s.Capacity == nil {
		return true
	}
	return activeCount < *s.Capacity
}

// SeatsLeft returns the number of open seats, or -1 for unlimited sessions.
func (s *Session) SeatsLeft(activeCount int) int {
	if s.Capacity == nil {
		return -1
	}
	left := *s.Capacity - activeCount
	if left < 0 {
		return 0
	}
	return left
}

// ChangeStatus applies an admin status transition.
func (s *Session) ChangeStatus(next Status) error {
	if !next.IsValid() {
		return shared.NewDomainError("session", "ChangeStatus", shared.ErrInvalidInput, "unknown status")
	}
	if s.Status.IsTerminal() {
		return shared.ErrSessionClosed
	}
	if !s.Status.CanTransitionTo(next) {
		return shared.ErrInvalidSessionStatus
	}
	s.Status = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// View is a session as seen by one user, with live registration numbers.
type View struct {
	Session
	RegistrationCount int  `json:"registration_count"`
	SeatsLeft         int  `json:"seats_left"`
	UserRegistered    bool `json:"user_registered"`
}

// NewView builds a View.
func NewView(s Session, activeCount int, userRegistered bool) View {
	return View{
		Session:           s,
		RegistrationCount: activeCount,
		SeatsLeft:         s.SeatsLeft(activeCount),
		UserRegistered:    userRegistered,
	}
}
