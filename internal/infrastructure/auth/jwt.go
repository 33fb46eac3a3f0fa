// Package auth signs and verifies access tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
)

var (
	ErrEmptySecret  = errors.New("auth: jwt secret is empty")
	ErrInvalidToken = shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, "invalid or expired token")
)

// Claims is the access token payload.
type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTIssuer issues and verifies HS256 access tokens.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates a JWTIssuer. ttl defaults to 24h.
func NewJWTIssuer(secret, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for identity.
func (j *JWTIssuer) Issue(identity user.Identity) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)
	claims := Claims{
		Sub:   identity.UserID.String(),
		Role:  identity.Role.String(),
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses tokenStr and returns the identity it carries.
func (j *JWTIssuer) Verify(tokenStr string) (user.Identity, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return user.Identity{}, shared.WrapError("auth", "Verify", shared.ErrUnauthorized, "invalid or expired token", err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return user.Identity{}, ErrInvalidToken
	}

	id, err := shared.ParseID(c.Sub)
	if err != nil {
		return user.Identity{}, ErrInvalidToken
	}
	role, err := user.ParseRole(c.Role)
	if err != nil {
		return user.Identity{}, ErrInvalidToken
	}
	return user.Identity{UserID: id, Role: role, Email: c.Email}, nil
}
