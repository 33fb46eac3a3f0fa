package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a user for a session.
type RegisterCommand struct {
	UserID    shared.ID
	SessionID shared.ID
}

// Validate validates the command.
func (c RegisterCommand) Validate() error {
	if c.UserID.IsEmpty() {
		return shared.NewDomainError("registration", "Register", shared.ErrEmptyValue, "user_id is required")
	}
	if !c.SessionID.IsValid() {
		return shared.NewDomainError("registration", "Register", shared.ErrInvalidID, "session_id is invalid")
	}
	return nil
}

// RegisterResult is returned after the registration committed. When a
// progression step failed, Progression holds what was applied before the
// failure and ProgressionError describes it.
type RegisterResult struct {
	Registration     *registration.Registration `json:"registration"`
	Progression      *ProgressionOutcome        `json:"progression,omitempty"`
	ProgressionError string                     `json:"progression_error,omitempty"`
}

// RegisterHandler handles RegisterCommand.
type RegisterHandler struct {
	registrations registration.Repository
	progressor    *Progressor
	publisher     shared.EventPublisher
	logger        *slog.Logger
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(
	registrations registration.Repository,
	progressor *Progressor,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *RegisterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterHandler{
		registrations: registrations,
		progressor:    progressor,
		publisher:     publisher,
		logger:        logger,
	}
}

// Handle registers the user and then runs registration progression.
func (h *RegisterHandler) Handle(ctx context.Context, cmd RegisterCommand) (*RegisterResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	reg, err := h.registrations.Register(ctx, cmd.UserID, cmd.SessionID)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationOutcome(err)).Inc()
		return nil, fmt.Errorf("register: %w", err)
	}
	metrics.RegistrationsTotal.WithLabelValues("registered").Inc()

	publish(h.publisher, h.logger, shared.NewRegistrationEvent(shared.EventRegistrationCreated,
		reg.ID.String(), reg.UserID.String(), reg.SessionID.String(), string(reg.Status)))

	result := &RegisterResult{Registration: reg}
	outcome, err := h.progressor.AfterRegistration(ctx, cmd.UserID, cmd.SessionID)
	result.Progression = outcome
	if err != nil {
		h.logger.Error("registration progression failed",
			"user_id", cmd.UserID,
			"session_id", cmd.SessionID,
			"registration_id", reg.ID,
			"error", err,
		)
		result.ProgressionError = err.Error()
	}
	return result, nil
}

func registrationOutcome(err error) string {
	switch {
	case shared.IsAlreadyExists(err):
		return "duplicate"
	case shared.IsCapacityExceeded(err):
		return "full"
	case errors.Is(err, shared.ErrSessionNotPublished):
		return "not_published"
	case shared.IsNotFound(err):
		return "not_found"
	}
	return "error"
}

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL
// ══════════════════════════════════════════════════════════════════════════════

// CancelRegistrationCommand cancels the user's active registration.
type CancelRegistrationCommand struct {
	UserID    shared.ID
	SessionID shared.ID
}

// CancelRegistrationHandler handles CancelRegistrationCommand. Experience
// already granted for the registration is kept.
type CancelRegistrationHandler struct {
	registrations registration.Repository
	publisher     shared.EventPublisher
	logger        *slog.Logger
}

// NewCancelRegistrationHandler creates a new CancelRegistrationHandler.
func NewCancelRegistrationHandler(registrations registration.Repository, publisher shared.EventPublisher, logger *slog.Logger) *CancelRegistrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelRegistrationHandler{registrations: registrations, publisher: publisher, logger: logger}
}

// Handle cancels the registration.
func (h *CancelRegistrationHandler) Handle(ctx context.Context, cmd CancelRegistrationCommand) (*registration.Registration, error) {
	if !cmd.SessionID.IsValid() {
		return nil, shared.NewDomainError("registration", "Cancel", shared.ErrInvalidID, "session_id is invalid")
	}

	reg, err := h.registrations.Cancel(ctx, cmd.UserID, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("cancel registration: %w", err)
	}

	publish(h.publisher, h.logger, shared.NewRegistrationEvent(shared.EventRegistrationCancelled,
		reg.ID.String(), reg.UserID.String(), reg.SessionID.String(), string(reg.Status)))
	return reg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand records whether a registrant attended.
type MarkAttendanceCommand struct {
	SessionID shared.ID
	UserID    shared.ID
	Attended  bool
}

// MarkAttendanceResult carries the updated registration and, for attended
// marks, the attendance progression.
type MarkAttendanceResult struct {
	Registration     *registration.Registration `json:"registration"`
	Progression      *ProgressionOutcome        `json:"progression,omitempty"`
	ProgressionError string                     `json:"progression_error,omitempty"`
}

// MarkAttendanceHandler handles MarkAttendanceCommand.
type MarkAttendanceHandler struct {
	registrations registration.Repository
	sessions      session.Repository
	progressor    *Progressor
	publisher     shared.EventPublisher
	logger        *slog.Logger
}

// NewMarkAttendanceHandler creates a new MarkAttendanceHandler.
func NewMarkAttendanceHandler(
	registrations registration.Repository,
	sessions session.Repository,
	progressor *Progressor,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *MarkAttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkAttendanceHandler{
		registrations: registrations,
		sessions:      sessions,
		progressor:    progressor,
		publisher:     publisher,
		logger:        logger,
	}
}

// Handle marks attendance. The streak is credited to the session's date,
// not the day the mark is made.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	if !cmd.SessionID.IsValid() || !cmd.UserID.IsValid() {
		return nil, shared.NewDomainError("registration", "MarkAttendance", shared.ErrInvalidID, "session_id and user_id are required")
	}

	sess, err := h.sessions.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("mark attendance: %w", err)
	}

	reg, err := h.registrations.MarkAttendance(ctx, cmd.SessionID, cmd.UserID, cmd.Attended)
	if err != nil {
		return nil, fmt.Errorf("mark attendance: %w", err)
	}

	result := &MarkAttendanceResult{Registration: reg}
	if !cmd.Attended {
		return result, nil
	}

	publish(h.publisher, h.logger, shared.NewRegistrationEvent(shared.EventRegistrationAttended,
		reg.ID.String(), reg.UserID.String(), reg.SessionID.String(), string(reg.Status)))

	outcome, err := h.progressor.AfterAttendance(ctx, cmd.UserID, cmd.SessionID, sess.SessionDate)
	result.Progression = outcome
	if err != nil {
		h.logger.Error("attendance progression failed",
			"user_id", cmd.UserID,
			"session_id", cmd.SessionID,
			"error", err,
		)
		result.ProgressionError = err.Error()
	}
	return result, nil
}

func publish(publisher shared.EventPublisher, logger *slog.Logger, event shared.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(event); err != nil {
		logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
