package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// PetRepository implements progression.PetRepository for PostgreSQL.
type PetRepository struct {
	conn *Connection
}

// NewPetRepository creates a new PetRepository.
func NewPetRepository(conn *Connection) *PetRepository {
	return &PetRepository{conn: conn}
}

const petColumns = `id, user_id, name, pet_type, level, experience, total_sessions_attended, created_at, updated_at`

// GetByUser returns the user's pet.
func (r *PetRepository) GetByUser(ctx context.Context, userID shared.ID) (*progression.Pet, error) {
	return scanPet(r.conn.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE user_id = $1`, userID))
}

// GetByID returns a pet by ID.
func (r *PetRepository) GetByID(ctx context.Context, petID shared.ID) (*progression.Pet, error) {
	return scanPet(r.conn.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, petID))
}

// Create inserts a pet. The user_id unique key rejects a second pet.
func (r *PetRepository) Create(ctx context.Context, pet *progression.Pet) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO pets (`+petColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		pet.ID, pet.UserID, pet.Name, pet.PetType, int(pet.Level), pet.Experience,
		pet.TotalSessionsAttended, pet.CreatedAt, pet.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrPetAlreadyExists
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to create pet: %w", err)
	}
	return nil
}

// GetOrCreate returns the user's pet, provisioning the default one first if
// needed. A concurrent insert loses on ON CONFLICT and reads the winner.
func (r *PetRepository) GetOrCreate(ctx context.Context, userID shared.ID) (*progression.Pet, error) {
	pet, err := progression.NewPet(userID, "", "")
	if err != nil {
		return nil, err
	}

	created, err := scanPet(r.conn.QueryRow(ctx, `
		INSERT INTO pets (`+petColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+petColumns,
		pet.ID, pet.UserID, pet.Name, pet.PetType, int(pet.Level), pet.Experience,
		pet.TotalSessionsAttended, pet.CreatedAt, pet.UpdatedAt,
	))
	if err == nil {
		return created, nil
	}
	if !shared.IsNotFound(err) {
		if IsForeignKeyViolation(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, err
	}
	return r.GetByUser(ctx, userID)
}

// AddExperience applies a grant. The increment is done in SQL so concurrent
// grants never lose an update; the level is recomputed from the new total
// while the row is still locked by this transaction.
func (r *PetRepository) AddExperience(ctx context.Context, grant progression.ExperienceGrant) (*progression.ExperienceResult, error) {
	if err := grant.Validate(); err != nil {
		return nil, err
	}

	var result progression.ExperienceResult
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		pet, err := scanPet(tx.QueryRow(ctx, `
			UPDATE pets SET experience = experience + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+petColumns,
			grant.PetID, grant.Amount,
		))
		if err != nil {
			return err
		}

		result.PreviousLevel = pet.Level
		if level := progression.LevelFor(pet.Experience); level != pet.Level {
			if _, err := tx.Exec(ctx, `UPDATE pets SET level = $2 WHERE id = $1`, pet.ID, int(level)); err != nil {
				return fmt.Errorf("failed to update level: %w", err)
			}
			pet.Level = level
		}
		result.Pet = pet

		entry := progression.ExperienceEntry{
			ID:        shared.NewID(),
			PetID:     pet.ID,
			Amount:    grant.Amount,
			Reason:    grant.Reason,
			SessionID: grant.SessionID,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pet_experience_log (id, pet_id, amount, reason, session_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, entry.ID, entry.PetID, entry.Amount, string(entry.Reason), nullableID(entry.SessionID), entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to log experience: %w", err)
		}
		result.Entry = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Rename changes the pet's display name.
func (r *PetRepository) Rename(ctx context.Context, petID shared.ID, name string) (*progression.Pet, error) {
	valid, err := progression.ValidatePetName(name)
	if err != nil {
		return nil, err
	}
	return scanPet(r.conn.QueryRow(ctx, `
		UPDATE pets SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+petColumns,
		petID, valid,
	))
}

// IncrementSessionsAttended bumps the attendance counter.
func (r *PetRepository) IncrementSessionsAttended(ctx context.Context, petID shared.ID) (*progression.Pet, error) {
	return scanPet(r.conn.QueryRow(ctx, `
		UPDATE pets SET total_sessions_attended = total_sessions_attended + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+petColumns,
		petID,
	))
}

// ExperienceHistory returns the newest log entries first.
func (r *PetRepository) ExperienceHistory(ctx context.Context, petID shared.ID, limit int) ([]progression.ExperienceEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, pet_id, amount, reason, COALESCE(session_id::text, ''), created_at
		FROM pet_experience_log
		WHERE pet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, petID, progression.NormalizeHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query experience history: %w", err)
	}
	defer rows.Close()

	var out []progression.ExperienceEntry
	for rows.Next() {
		var e progression.ExperienceEntry
		var reason string
		if err := rows.Scan(&e.ID, &e.PetID, &e.Amount, &reason, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experience entry: %w", err)
		}
		e.Reason = progression.ExperienceReason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanPet(row pgx.Row) (*progression.Pet, error) {
	var p progression.Pet
	var level int
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.PetType, &level, &p.Experience,
		&p.TotalSessionsAttended, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPetNotFound
		}
		return nil, fmt.Errorf("failed to scan pet: %w", err)
	}
	p.Level = progression.Level(level)
	return &p, nil
}

// nullableID maps an empty ID to SQL NULL.
func nullableID(id shared.ID) any {
	if id.IsEmpty() {
		return nil
	}
	return id
}
