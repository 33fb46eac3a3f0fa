package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. A cost outside bcrypt's range falls back
// to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", shared.WrapError("auth", "Hash", shared.ErrInvalidInput, "cannot hash password", err)
	}
	return string(b), nil
}

// Compare returns shared.ErrInvalidCredentials on mismatch.
func (h *BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}
