package postgres

import (
	"context"
	"fmt"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// AchievementRepository implements progression.AchievementRepository for
// PostgreSQL. The (user_id, achievement_type) unique key makes every unlock
// idempotent.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// Unlock inserts the achievement unless the user already has it.
func (r *AchievementRepository) Unlock(ctx context.Context, userID shared.ID, t progression.AchievementType) (*progression.Achievement, bool, error) {
	a, err := progression.NewAchievement(userID, t)
	if err != nil {
		return nil, false, err
	}

	err = r.conn.QueryRow(ctx, `
		INSERT INTO achievements (id, user_id, achievement_type, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_type) DO NOTHING
		RETURNING unlocked_at
	`, a.ID, a.UserID, string(a.Type), a.UnlockedAt).Scan(&a.UnlockedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		if IsForeignKeyViolation(err) {
			return nil, false, shared.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	return a, true, nil
}

// CheckAndUnlock inserts every eligible achievement and returns the ones
// that are new for this user.
func (r *AchievementRepository) CheckAndUnlock(ctx context.Context, userID shared.ID, m progression.Milestones) ([]progression.Achievement, error) {
	eligible := progression.EligibleAchievements(m)
	if len(eligible) == 0 {
		return nil, nil
	}

	var unlocked []progression.Achievement
	for _, t := range eligible {
		a, inserted, err := r.Unlock(ctx, userID, t)
		if err != nil {
			return unlocked, err
		}
		if inserted {
			unlocked = append(unlocked, *a)
		}
	}
	return unlocked, nil
}

// ListByUser returns the user's unlocks, newest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID shared.ID) ([]progression.Achievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, achievement_type, unlocked_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC, achievement_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []progression.Achievement
	for rows.Next() {
		var a progression.Achievement
		var t string
		if err := rows.Scan(&a.ID, &a.UserID, &t, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Type = progression.AchievementType(t)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Has reports whether the user unlocked t.
func (r *AchievementRepository) Has(ctx context.Context, userID shared.ID, t progression.AchievementType) (bool, error) {
	var ok bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM achievements WHERE user_id = $1 AND achievement_type = $2)
	`, userID, string(t)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check achievement: %w", err)
	}
	return ok, nil
}
