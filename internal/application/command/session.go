package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// CreateSessionCommand creates a session.
type CreateSessionCommand struct {
	Title         string
	Description   string
	Location      string
	PresenterName string
	SessionDate   time.Time
	StartTime     string
	EndTime       string
	Capacity      *int
	Publish       bool
	CreatedBy     shared.ID
}

// CreateSessionHandler handles CreateSessionCommand.
type CreateSessionHandler struct {
	sessions session.Repository
}

// NewCreateSessionHandler creates a new CreateSessionHandler.
func NewCreateSessionHandler(sessions session.Repository) *CreateSessionHandler {
	return &CreateSessionHandler{sessions: sessions}
}

// Handle validates and stores the session.
func (h *CreateSessionHandler) Handle(ctx context.Context, cmd CreateSessionCommand) (*session.Session, error) {
	s, err := session.NewSession(session.NewSessionParams(cmd))
	if err != nil {
		return nil, err
	}
	if err := h.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// ChangeSessionStatusCommand moves a session through its lifecycle.
type ChangeSessionStatusCommand struct {
	SessionID shared.ID
	Status    session.Status
}

// ChangeSessionStatusHandler handles ChangeSessionStatusCommand.
type ChangeSessionStatusHandler struct {
	sessions session.Repository
}

// NewChangeSessionStatusHandler creates a new ChangeSessionStatusHandler.
func NewChangeSessionStatusHandler(sessions session.Repository) *ChangeSessionStatusHandler {
	return &ChangeSessionStatusHandler{sessions: sessions}
}

// Handle applies the transition.
func (h *ChangeSessionStatusHandler) Handle(ctx context.Context, cmd ChangeSessionStatusCommand) (*session.Session, error) {
	s, err := h.sessions.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("change session status: %w", err)
	}
	if err := s.ChangeStatus(cmd.Status); err != nil {
		return nil, err
	}
	if err := h.sessions.UpdateStatus(ctx, s.ID, s.Status); err != nil {
		return nil, fmt.Errorf("change session status: %w", err)
	}
	return s, nil
}
