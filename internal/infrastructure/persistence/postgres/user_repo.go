package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
)

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at`

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id shared.ID) (*user.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email shared.Email) (*user.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id shared.ID, role user.Role) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1
	`, id, string(role))
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var role string
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = user.Role(role)
	return &u, nil
}
