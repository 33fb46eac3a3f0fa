// Package registration models a user's claim on a seat in a session.
//
// State machine per (user, session):
//
//	none -> registered -> cancelled | attended | no-show
//	cancelled -> registered (a new row)
//
// At most one registration per pair is active (status registered).
package registration

import (
	"time"

	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Status is the lifecycle status of a registration.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusAttended   Status = "attended"
	StatusNoShow     Status = "no-show"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusRegistered, StatusAttended, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status holds a seat.
func (s Status) IsActive() bool {
	return s == StatusRegistered
}

// CountsTowardSessions reports whether the registration counts for the
// session-count achievements.
func (s Status) CountsTowardSessions() bool {
	return s == StatusRegistered || s == StatusAttended
}

// Registration joins a user and a session.
type Registration struct {
	ID           shared.ID `json:"id"`
	SessionID    shared.ID `json:"session_id"`
	UserID       shared.ID `json:"user_id"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New creates an active registration.
func New(userID, sessionID shared.ID) *Registration {
	now := time.Now().UTC()
	return &Registration{
		ID:           shared.NewID(),
		SessionID:    sessionID,
		UserID:       userID,
		Status:       StatusRegistered,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
}

// Cancel releases the seat. Only active registrations can be cancelled.
func (r *Registration) Cancel() error {
	if !r.Status.IsActive() {
		return shared.ErrRegistrationNotFound
	}
	r.Status = StatusCancelled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkAttendance records attendance for an active registration.
func (r *Registration) MarkAttendance(attended bool) error {
	if !r.Status.IsActive() {
		return shared.ErrInvalidAttendanceMark
	}
	r.Status = AttendanceStatus(attended)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AttendanceStatus maps an attendance flag to a status.
func AttendanceStatus(attended bool) Status {
	if attended {
		return StatusAttended
	}
	return StatusNoShow
}

// Admit decides whether a new registration may be created for a session.
// Checks run in order: published, duplicate, capacity. Callers hold a lock
// on the session row so activeCount cannot change underneath them.
func Admit(s *session.Session, alreadyRegistered bool, activeCount int) error {
	if s == nil {
		return shared.ErrSessionNotFound
	}
	if !s.IsPublished() {
		return shared.ErrSessionNotPublished
	}
	if alreadyRegistered {
		return shared.ErrAlreadyRegistered
	}
	if !s.HasCapacityFor(activeCount) {
		return shared.ErrSessionFull
	}
	return nil
}

// SessionSummary is the slice of a session shown next to a registration.
type SessionSummary struct {
	ID            shared.ID `json:"id"`
	Title         string    `json:"title"`
	SessionDate   time.Time `json:"session_date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Location      string    `json:"location,omitempty"`
	PresenterName string    `json:"presenter_name,omitempty"`
}

// WithSession is a registration listed for its owner.
type WithSession struct {
	Registration
	Session SessionSummary `json:"session"`
}

// UserSummary is the slice of a user shown to session managers.
type UserSummary struct {
	ID        shared.ID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// Registrant is a registration listed for a session manager.
type Registrant struct {
	Registration
	User UserSummary `json:"user"`
}
