// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ID is a UUID-formatted entity identifier. Users, sessions, registrations,
// pets and streaks all use it.
type ID string

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates a string as an ID.
func ParseID(value string) (ID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", WrapError("shared", "ParseID", ErrInvalidID, "invalid id", err)
	}
	return ID(parsed.String()), nil
}

// IsValid checks if the ID parses as a UUID.
func (id ID) IsValid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// IsEmpty checks if the ID is empty.
func (id ID) IsEmpty() bool {
	return id == ""
}

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// ═══════════════════════════════════════════════════════════════════════════
// Email Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized (trimmed, lowercased) email address.
type Email string

// NewEmail validates and normalizes an address.
func NewEmail(value string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return Email(normalized), nil
}

// String returns the string representation.
func (e Email) String() string {
	return string(e)
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange is an inclusive range of calendar days. A zero bound leaves that
// side open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// NewTimeRange rejects a range whose end precedes its start.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'to' must not be before 'from'")
	}
	return tr, nil
}

// IsValid reports whether the bounds are ordered. Open ranges are valid.
func (t TimeRange) IsValid() bool {
	return t.From.IsZero() || t.To.IsZero() || !t.To.Before(t.From)
}

// Contains reports whether day falls inside the range, bounds included.
func (t TimeRange) Contains(day time.Time) bool {
	if !t.From.IsZero() && day.Before(t.From) {
		return false
	}
	return t.To.IsZero() || !day.After(t.To)
}
