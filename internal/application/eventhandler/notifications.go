// Package eventhandler contains subscribers to domain events.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/notification"
	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// Toggle reports whether a handler should act. A nil Toggle is always on.
type Toggle func() bool

func (t Toggle) on() bool {
	return t == nil || t()
}

// sendTimeout bounds one email send including retries.
const sendTimeout = 30 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION CONFIRMATION
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationConfirmationHandler emails the user when a registration is
// created.
type RegistrationConfirmationHandler struct {
	users    user.Repository
	sessions session.Repository
	sender   notification.Sender
	enabled  Toggle
	logger   *slog.Logger
}

// NewRegistrationConfirmationHandler creates the handler.
func NewRegistrationConfirmationHandler(
	users user.Repository,
	sessions session.Repository,
	sender notification.Sender,
	enabled Toggle,
	logger *slog.Logger,
) *RegistrationConfirmationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationConfirmationHandler{
		users:    users,
		sessions: sessions,
		sender:   sender,
		enabled:  enabled,
		logger:   logger.With("handler", "registration_confirmation"),
	}
}

// Handle implements shared.EventHandler.
func (h *RegistrationConfirmationHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventRegistrationCreated || !h.enabled.on() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	userID := shared.ID(shared.PayloadString(event, "user_id"))
	sessionID := shared.ID(shared.PayloadString(event, "session_id"))

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	s, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	vars := map[string]string{
		"first_name":    u.FirstName,
		"session_title": s.Title,
		"session_date":  timeutil.FormatDateStr(s.SessionDate),
		"start_time":    s.StartTime,
		"end_time":      s.EndTime,
		"location":      s.Location,
	}
	if err := h.sender.Send(ctx, notification.TemplateRegistrationConfirmation, u.Email.String(), vars); err != nil {
		return fmt.Errorf("send registration confirmation: %w", err)
	}

	h.logger.Info("registration confirmation sent", "user_id", userID, "session_id", sessionID)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT UNLOCKED
// ══════════════════════════════════════════════════════════════════════════════

// AchievementEmailHandler emails the user about a new achievement.
type AchievementEmailHandler struct {
	users   user.Repository
	sender  notification.Sender
	enabled Toggle
	logger  *slog.Logger
}

// NewAchievementEmailHandler creates the handler.
func NewAchievementEmailHandler(users user.Repository, sender notification.Sender, enabled Toggle, logger *slog.Logger) *AchievementEmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AchievementEmailHandler{
		users:   users,
		sender:  sender,
		enabled: enabled,
		logger:  logger.With("handler", "achievement_unlocked"),
	}
}

// Handle implements shared.EventHandler.
func (h *AchievementEmailHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventAchievementUnlocked || !h.enabled.on() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	userID := shared.ID(shared.PayloadString(event, "user_id"))
	achievement := progression.AchievementType(shared.PayloadString(event, "achievement_type"))
	def, ok := progression.LookupAchievement(achievement)
	if !ok {
		h.logger.Warn("unknown achievement in event", "achievement_type", achievement)
		return nil
	}

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	vars := map[string]string{
		"first_name":  u.FirstName,
		"title":       def.Title,
		"description": def.Description,
	}
	if err := h.sender.Send(ctx, notification.TemplateAchievementUnlocked, u.Email.String(), vars); err != nil {
		return fmt.Errorf("send achievement email: %w", err)
	}

	h.logger.Info("achievement email sent", "user_id", userID, "achievement_type", achievement)
	return nil
}
