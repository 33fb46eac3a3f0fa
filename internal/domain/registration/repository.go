package registration

import (
	"context"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// Repository stores registrations.
//
// Register runs the whole admission (lock session, Admit, insert) in one
// transaction; concurrent calls for the last seat must not both succeed.
type Repository interface {
	Register(ctx context.Context, userID, sessionID shared.ID) (*Registration, error)

	// Cancel flips the active registration to cancelled, or returns
	// shared.ErrRegistrationNotFound.
	Cancel(ctx context.Context, userID, sessionID shared.ID) (*Registration, error)

	// MarkAttendance flips the active registration to attended or no-show.
	MarkAttendance(ctx context.Context, sessionID, userID shared.ID, attended bool) (*Registration, error)

	ListForUser(ctx context.Context, userID shared.ID) ([]WithSession, error)

	ListRegistrants(ctx context.Context, sessionID shared.ID) ([]Registrant, error)

	// CountForUser counts distinct sessions the user is registered for or
	// attended.
	CountForUser(ctx context.Context, userID shared.ID) (int, error)
}
