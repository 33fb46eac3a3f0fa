package session

import (
	"context"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Repository stores sessions.
type Repository interface {
	Create(ctx context.Context, s *Session) error

	// GetByID returns shared.ErrSessionNotFound when absent.
	GetByID(ctx context.Context, id shared.ID) (*Session, error)

	// GetView returns the session with its active registration count and
	// whether viewerID holds an active registration.
	GetView(ctx context.Context, id, viewerID shared.ID) (*View, error)

	// ListPublished returns published sessions ordered by date and start time.
	ListPublished(ctx context.Context, dates shared.TimeRange, viewerID shared.ID) ([]View, error)

	UpdateStatus(ctx context.Context, id shared.ID, status Status) error
}
