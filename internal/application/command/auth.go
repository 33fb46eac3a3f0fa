package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs access tokens for a verified identity.
type TokenIssuer interface {
	Issue(identity user.Identity) (token string, expiresAt time.Time, err error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNUP
// ══════════════════════════════════════════════════════════════════════════════

// SignupCommand creates a staff account.
type SignupCommand struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Validate validates the command.
func (c SignupCommand) Validate() error {
	if len(c.Password) < user.MinPasswordLength {
		return shared.ErrWeakPassword
	}
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return shared.NewDomainError("user", "Signup", shared.ErrEmptyValue, "first and last name are required")
	}
	return nil
}

// SignupHandler handles SignupCommand.
type SignupHandler struct {
	users     user.Repository
	hasher    PasswordHasher
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewSignupHandler creates a new SignupHandler.
func NewSignupHandler(users user.Repository, hasher PasswordHasher, publisher shared.EventPublisher, logger *slog.Logger) *SignupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignupHandler{users: users, hasher: hasher, publisher: publisher, logger: logger}
}

// Handle creates the user.
func (h *SignupHandler) Handle(ctx context.Context, cmd SignupCommand) (*user.User, error) {
	email, err := shared.NewEmail(cmd.Email)
	if err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	hash, err := h.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("signup: hash password: %w", err)
	}

	u := user.New(email, hash, cmd.FirstName, cmd.LastName)
	if err := h.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	publish(h.publisher, h.logger, shared.NewUserEvent(shared.EventUserSignedUp, u.ID.String(), u.Email.String(), u.Role.String()))
	return u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN
// ══════════════════════════════════════════════════════════════════════════════

// LoginCommand exchanges credentials for an access token.
type LoginCommand struct {
	Email    string
	Password string
}

// LoginResult carries the signed token.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// LoginHandler handles LoginCommand.
type LoginHandler struct {
	users  user.Repository
	hasher PasswordHasher
	tokens TokenIssuer
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(users user.Repository, hasher PasswordHasher, tokens TokenIssuer) *LoginHandler {
	return &LoginHandler{users: users, hasher: hasher, tokens: tokens}
}

// Handle verifies the credentials. Unknown emails and wrong passwords fail
// with the same error.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	email, err := shared.NewEmail(cmd.Email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	u, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := h.hasher.Compare(u.PasswordHash, cmd.Password); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, shared.ErrUserInactive
	}

	token, expiresAt, err := h.tokens.Issue(u.Identity())
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANGE ROLE
// ══════════════════════════════════════════════════════════════════════════════

// ChangeRoleCommand changes a user's role (admin only).
type ChangeRoleCommand struct {
	UserID shared.ID
	Role   string
}

// ChangeRoleHandler handles ChangeRoleCommand.
type ChangeRoleHandler struct {
	users     user.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewChangeRoleHandler creates a new ChangeRoleHandler.
func NewChangeRoleHandler(users user.Repository, publisher shared.EventPublisher, logger *slog.Logger) *ChangeRoleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeRoleHandler{users: users, publisher: publisher, logger: logger}
}

// Handle applies the new role and returns the updated user.
func (h *ChangeRoleHandler) Handle(ctx context.Context, cmd ChangeRoleCommand) (*user.User, error) {
	role, err := user.ParseRole(cmd.Role)
	if err != nil {
		return nil, err
	}
	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	if err := u.ChangeRole(role); err != nil {
		return nil, err
	}
	if err := h.users.UpdateRole(ctx, u.ID, u.Role); err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}

	publish(h.publisher, h.logger, shared.NewUserEvent(shared.EventUserRoleChange, u.ID.String(), u.Email.String(), u.Role.String()))
	return u, nil
}
