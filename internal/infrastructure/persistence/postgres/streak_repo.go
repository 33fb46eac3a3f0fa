package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// StreakRepository implements progression.StreakRepository for PostgreSQL.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

const streakColumns = `id, user_id, current_streak, longest_streak, last_session_date, updated_at`

// GetByUser returns the user's streak.
func (r *StreakRepository) GetByUser(ctx context.Context, userID shared.ID) (*progression.Streak, error) {
	return scanStreak(r.conn.QueryRow(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1`, userID))
}

// GetOrCreate returns the user's streak, inserting an empty one if needed.
func (r *StreakRepository) GetOrCreate(ctx context.Context, userID shared.ID) (*progression.Streak, error) {
	if err := ensureStreak(ctx, r.conn, userID); err != nil {
		return nil, err
	}
	return r.GetByUser(ctx, userID)
}

// RecordActivity applies one activity day. The row stays locked from the
// read to the write so two activities for the same user cannot both extend
// from the same base.
func (r *StreakRepository) RecordActivity(ctx context.Context, userID shared.ID, activityDate time.Time) (*progression.StreakUpdate, error) {
	day := timeutil.DateOf(activityDate)

	var update progression.StreakUpdate
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := ensureStreak(ctx, tx, userID); err != nil {
			return err
		}
		current, err := scanStreak(tx.QueryRow(ctx,
			`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}

		next, transition := progression.NextStreak(*current, day)
		update = progression.StreakUpdate{Previous: *current, Transition: transition}
		if !transition.Changed() {
			update.Streak = current
			return nil
		}

		saved, err := scanStreak(tx.QueryRow(ctx, `
			UPDATE streaks
			SET current_streak = $2, longest_streak = $3, last_session_date = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING `+streakColumns,
			next.ID, next.Current, next.Longest, next.LastSessionDate,
		))
		if err != nil {
			return err
		}
		update.Streak = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// ResetIfStale zeroes a stale running streak.
func (r *StreakRepository) ResetIfStale(ctx context.Context, userID shared.ID, asOf time.Time) (*progression.Streak, bool, error) {
	var (
		result *progression.Streak
		reset  bool
	)
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := ensureStreak(ctx, tx, userID); err != nil {
			return err
		}
		s, err := scanStreak(tx.QueryRow(ctx,
			`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		result = s
		if !s.ResetIfStale(asOf) {
			return nil
		}

		saved, err := scanStreak(tx.QueryRow(ctx, `
			UPDATE streaks SET current_streak = 0, updated_at = NOW()
			WHERE id = $1
			RETURNING `+streakColumns,
			s.ID,
		))
		if err != nil {
			return err
		}
		result, reset = saved, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, reset, nil
}

// ListStale returns up to limit users whose running streak has a gap of
// more than one day before asOf, keyset-paginated by user id.
func (r *StreakRepository) ListStale(ctx context.Context, asOf time.Time, afterUserID shared.ID, limit int) ([]shared.ID, error) {
	cutoff := timeutil.DateOf(asOf).AddDate(0, 0, -1)

	rows, err := r.conn.Query(ctx, `
		SELECT user_id
		FROM streaks
		WHERE current_streak > 0
		  AND last_session_date < $1
		  AND user_id::text > $2
		ORDER BY user_id::text
		LIMIT $3
	`, cutoff, afterUserID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale streaks: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var id shared.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func ensureStreak(ctx context.Context, q Querier, userID shared.ID) error {
	s := progression.NewStreak(userID)
	_, err := q.Exec(ctx, `
		INSERT INTO streaks (id, user_id, current_streak, longest_streak, updated_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, s.ID, s.UserID, s.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to ensure streak: %w", err)
	}
	return nil
}

func scanStreak(row pgx.Row) (*progression.Streak, error) {
	var s progression.Streak
	err := row.Scan(&s.ID, &s.UserID, &s.Current, &s.Longest, &s.LastSessionDate, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, fmt.Errorf("failed to scan streak: %w", err)
	}
	return &s, nil
}
