// Package user holds portal accounts and roles.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Role controls what a user may do in the portal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// ParseRole validates a role name.
func ParseRole(value string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if !r.IsValid() {
		return "", shared.ErrInvalidRole
	}
	return r, nil
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// MinPasswordLength is enforced at signup.
const MinPasswordLength = 8

// User is a portal account. Users are never hard-deleted; IsActive=false
// disables login.
type User struct {
	ID           shared.ID    `json:"id"`
	Email        shared.Email `json:"email"`
	PasswordHash string       `json:"-"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Role         Role         `json:"role"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// New creates an active staff account with an already hashed password.
func New(email shared.Email, passwordHash, firstName, lastName string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           shared.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         RoleStaff,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ChangeRole sets a new role.
func (u *User) ChangeRole(r Role) error {
	if !r.IsValid() {
		return shared.ErrInvalidRole
	}
	u.Role = r
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Identity returns the verified pair the rest of the portal trusts.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Role: u.Role, Email: u.Email.String()}
}

// Identity is the (user id, role) pair produced by authentication.
type Identity struct {
	UserID shared.ID
	Role   Role
	Email  string
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.UserID.IsEmpty()
}

// Repository stores users.
type Repository interface {
	// Create returns shared.ErrUserAlreadyExists for a taken email.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id shared.ID) (*User, error)
	GetByEmail(ctx context.Context, email shared.Email) (*User, error)
	UpdateRole(ctx context.Context, id shared.ID, role Role) error
}
