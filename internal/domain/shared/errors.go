// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Capacity and concurrency errors
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Availability errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "session", "registration", "progression"
	Op      string // Operation that failed, e.g., "Create", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// User domain errors
var (
	ErrUserNotFound       = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists  = NewDomainError("user", "Create", ErrAlreadyExists, "user with this email already exists")
	ErrInvalidEmail       = NewDomainError("user", "Validate", ErrInvalidInput, "invalid email")
	ErrWeakPassword       = NewDomainError("user", "Validate", ErrInvalidInput, "password must be at least 8 characters")
	ErrInvalidRole        = NewDomainError("user", "Validate", ErrInvalidInput, "invalid role")
	ErrInvalidCredentials = NewDomainError("user", "Authenticate", ErrUnauthorized, "invalid email or password")
	ErrUserInactive       = NewDomainError("user", "Authenticate", ErrForbidden, "user account is disabled")
)

// Session domain errors
var (
	ErrSessionNotFound      = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionNotPublished  = NewDomainError("session", "Register", ErrInvalidState, "session is not available for registration")
	ErrInvalidSessionStatus = NewDomainError("session", "ChangeStatus", ErrStateTransition, "invalid session status transition")
	ErrSessionClosed        = NewDomainError("session", "ChangeStatus", ErrStateTransition, "session is completed or cancelled and can no longer change")
	ErrInvalidCapacity      = NewDomainError("session", "Validate", ErrInvalidInput, "capacity must be positive")
	ErrInvalidSessionTime   = NewDomainError("session", "Validate", ErrInvalidInput, "end time must be after start time")
	ErrMissingSessionField  = NewDomainError("session", "Validate", ErrEmptyValue, "title, date, start and end time are required")
)

// Registration domain errors
var (
	ErrAlreadyRegistered     = NewDomainError("registration", "Register", ErrAlreadyExists, "already registered for this session")
	ErrSessionFull           = NewDomainError("registration", "Register", ErrCapacityExceeded, "session is full")
	ErrRegistrationNotFound  = NewDomainError("registration", "Find", ErrNotFound, "registration not found")
	ErrInvalidAttendanceMark = NewDomainError("registration", "MarkAttendance", ErrStateTransition, "only active registrations can be marked")
)

// Progression domain errors
var (
	ErrPetNotFound        = NewDomainError("progression", "FindPet", ErrNotFound, "pet not found")
	ErrPetAlreadyExists   = NewDomainError("progression", "CreatePet", ErrConflict, "user already has a pet")
	ErrInvalidExperience  = NewDomainError("progression", "AddExperience", ErrInvalidInput, "experience amount must be positive")
	ErrInvalidReason      = NewDomainError("progression", "AddExperience", ErrInvalidInput, "unknown experience reason")
	ErrEmptyPetName       = NewDomainError("progression", "RenamePet", ErrEmptyValue, "pet name cannot be empty")
	ErrStreakNotFound     = NewDomainError("progression", "FindStreak", ErrNotFound, "streak not found")
	ErrUnknownAchievement = NewDomainError("progression", "Unlock", ErrInvalidInput, "unknown achievement type")
)

// External service errors
var (
	ErrEmailUnavailable = NewDomainError("email", "Send", ErrServiceUnavailable, "email service is unavailable")
	ErrUnknownTemplate  = NewDomainError("email", "Render", ErrInvalidInput, "unknown email template")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict checks if the error is a uniqueness race or a concurrent update.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrConcurrentModification)
}

// IsCapacityExceeded checks if the error means no seats are left.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}
