package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// RegistrationRepository implements registration.Repository for PostgreSQL.
type RegistrationRepository struct {
	conn *Connection
}

// NewRegistrationRepository creates a new RegistrationRepository.
func NewRegistrationRepository(conn *Connection) *RegistrationRepository {
	return &RegistrationRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Admission
// ─────────────────────────────────────────────────────────────────────────────

// Register admits the user to the session. The session row is locked with
// FOR UPDATE so the active count read below cannot change before the insert;
// two callers racing for the last seat serialize on that lock.
func (r *RegistrationRepository) Register(ctx context.Context, userID, sessionID shared.ID) (*registration.Registration, error) {
	reg := registration.New(userID, sessionID)

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1 FOR UPDATE`, sessionID))
		if err != nil {
			return err
		}

		var active int
		var mine bool
		err = tx.QueryRow(ctx, `
			SELECT count(*), COALESCE(bool_or(user_id = $2), FALSE)
			FROM registrations
			WHERE session_id = $1 AND status = 'registered'
		`, sessionID, userID).Scan(&active, &mine)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}

		if err := registration.Admit(s, mine, active); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO registrations (id, session_id, user_id, status, registered_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, reg.ID, reg.SessionID, reg.UserID, string(reg.Status), reg.RegisteredAt, reg.UpdatedAt)
		return err
	})
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return nil, shared.ErrAlreadyRegistered
		case IsForeignKeyViolation(err):
			return nil, shared.ErrUserNotFound
		}
		return nil, err
	}
	return reg, nil
}

// Cancel releases the user's active registration.
func (r *RegistrationRepository) Cancel(ctx context.Context, userID, sessionID shared.ID) (*registration.Registration, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE registrations SET status = 'cancelled', updated_at = NOW()
		WHERE session_id = $1 AND user_id = $2 AND status = 'registered'
		RETURNING id, session_id, user_id, status, registered_at, updated_at
	`, sessionID, userID)
	return scanRegistration(row)
}

// MarkAttendance records attended or no-show on the active registration.
func (r *RegistrationRepository) MarkAttendance(ctx context.Context, sessionID, userID shared.ID, attended bool) (*registration.Registration, error) {
	status := registration.AttendanceStatus(attended)
	row := r.conn.QueryRow(ctx, `
		UPDATE registrations SET status = $3, updated_at = NOW()
		WHERE session_id = $1 AND user_id = $2 AND status = 'registered'
		RETURNING id, session_id, user_id, status, registered_at, updated_at
	`, sessionID, userID, string(status))

	reg, err := scanRegistration(row)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrInvalidAttendanceMark
		}
		return nil, err
	}
	return reg, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Listings
// ─────────────────────────────────────────────────────────────────────────────

// ListForUser returns the user's registrations with session details, newest
// session first.
func (r *RegistrationRepository) ListForUser(ctx context.Context, userID shared.ID) ([]registration.WithSession, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT r.id, r.session_id, r.user_id, r.status, r.registered_at, r.updated_at,
			s.title, s.session_date, s.start_time, s.end_time, s.location, s.presenter_name
		FROM registrations r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.user_id = $1
		ORDER BY s.session_date DESC, s.start_time DESC, r.registered_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var out []registration.WithSession
	for rows.Next() {
		var item registration.WithSession
		var status string
		err := rows.Scan(
			&item.ID, &item.SessionID, &item.UserID, &status, &item.RegisteredAt, &item.UpdatedAt,
			&item.Session.Title, &item.Session.SessionDate, &item.Session.StartTime, &item.Session.EndTime,
			&item.Session.Location, &item.Session.PresenterName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		item.Status = registration.Status(status)
		item.Session.ID = item.SessionID
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListRegistrants returns everyone registered for a session, cancelled rows
// excluded.
func (r *RegistrationRepository) ListRegistrants(ctx context.Context, sessionID shared.ID) ([]registration.Registrant, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT r.id, r.session_id, r.user_id, r.status, r.registered_at, r.updated_at,
			u.email, u.first_name, u.last_name
		FROM registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.session_id = $1 AND r.status <> 'cancelled'
		ORDER BY r.registered_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrants: %w", err)
	}
	defer rows.Close()

	var out []registration.Registrant
	for rows.Next() {
		var item registration.Registrant
		var status string
		err := rows.Scan(
			&item.ID, &item.SessionID, &item.UserID, &status, &item.RegisteredAt, &item.UpdatedAt,
			&item.User.Email, &item.User.FirstName, &item.User.LastName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registrant: %w", err)
		}
		item.Status = registration.Status(status)
		item.User.ID = item.UserID
		out = append(out, item)
	}
	return out, rows.Err()
}

// CountForUser counts distinct sessions the user is registered for or
// attended.
func (r *RegistrationRepository) CountForUser(ctx context.Context, userID shared.ID) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `
		SELECT count(DISTINCT session_id)
		FROM registrations
		WHERE user_id = $1 AND status IN ('registered', 'attended')
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return n, nil
}

func scanRegistration(row pgx.Row) (*registration.Registration, error) {
	var reg registration.Registration
	var status string
	err := row.Scan(&reg.ID, &reg.SessionID, &reg.UserID, &status, &reg.RegisteredAt, &reg.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}
	reg.Status = registration.Status(status)
	return &reg, nil
}
