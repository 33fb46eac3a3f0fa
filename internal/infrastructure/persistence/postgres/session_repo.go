package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// SessionRepository implements session.Repository for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

const sessionColumns = `s.id, s.title, s.description, s.location, s.presenter_name,
	s.session_date, s.start_time, s.end_time, s.capacity, s.status,
	COALESCE(s.created_by::text, ''), s.created_at, s.updated_at`

// viewColumns extends sessionColumns with the live counts for a viewer ($1).
const viewColumns = sessionColumns + `,
	(SELECT count(*) FROM registrations r WHERE r.session_id = s.id AND r.status = 'registered'),
	EXISTS (SELECT 1 FROM registrations r WHERE r.session_id = s.id AND r.user_id::text = $1 AND r.status = 'registered')`

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO sessions (
			id, title, description, location, presenter_name, session_date,
			start_time, end_time, capacity, status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		s.ID, s.Title, s.Description, s.Location, s.PresenterName, s.SessionDate,
		s.StartTime, s.EndTime, s.Capacity, string(s.Status), nullableID(s.CreatedBy), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID returns a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id shared.ID) (*session.Session, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id)
	return scanSession(row)
}

// GetView returns a session with live registration numbers for viewerID.
func (r *SessionRepository) GetView(ctx context.Context, id, viewerID shared.ID) (*session.View, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+viewColumns+` FROM sessions s WHERE s.id = $2`, viewerID.String(), id)
	return scanView(row)
}

// ListPublished returns published sessions in date order.
func (r *SessionRepository) ListPublished(ctx context.Context, dates shared.TimeRange, viewerID shared.ID) ([]session.View, error) {
	query := `SELECT ` + viewColumns + `
		FROM sessions s
		WHERE s.status = 'published'`
	args := []any{viewerID.String()}

	if !dates.From.IsZero() {
		args = append(args, dates.From)
		query += fmt.Sprintf(" AND s.session_date >= $%d", len(args))
	}
	if !dates.To.IsZero() {
		args = append(args, dates.To)
		query += fmt.Sprintf(" AND s.session_date <= $%d", len(args))
	}
	query += " ORDER BY s.session_date, s.start_time"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var views []session.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, rows.Err()
}

// UpdateStatus stores a new status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id shared.ID, status session.Status) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

func sessionDest(s *session.Session, status *string) []any {
	return []any{
		&s.ID, &s.Title, &s.Description, &s.Location, &s.PresenterName,
		&s.SessionDate, &s.StartTime, &s.EndTime, &s.Capacity, status,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	}
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var status string
	if err := row.Scan(sessionDest(&s, &status)...); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = session.Status(status)
	return &s, nil
}

func scanView(row pgx.Row) (*session.View, error) {
	var s session.Session
	var status string
	var count int
	var registered bool

	dest := append(sessionDest(&s, &status), &count, &registered)
	if err := row.Scan(dest...); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session view: %w", err)
	}
	s.Status = session.Status(status)
	v := session.NewView(s, count, registered)
	return &v, nil
}
