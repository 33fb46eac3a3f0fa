package query

import (
	"context"
	"fmt"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

// ListSessionsQuery lists published sessions for a viewer, optionally
// limited to a range of session dates.
type ListSessionsQuery struct {
	ViewerID shared.ID
	Dates    shared.TimeRange
}

// SessionQueries serves session reads.
type SessionQueries struct {
	sessions      session.Repository
	registrations registration.Repository
}

// NewSessionQueries creates a new SessionQueries.
func NewSessionQueries(sessions session.Repository, registrations registration.Repository) *SessionQueries {
	return &SessionQueries{sessions: sessions, registrations: registrations}
}

// List returns published sessions in date order.
func (q *SessionQueries) List(ctx context.Context, query ListSessionsQuery) ([]session.View, error) {
	if !query.Dates.IsValid() {
		return nil, shared.NewDomainError("session", "List", shared.ErrInvalidInput, "to must not be before from")
	}
	views, err := q.sessions.ListPublished(ctx, query.Dates, query.ViewerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if views == nil {
		views = []session.View{}
	}
	return views, nil
}

// Get returns one session with live counts. Unpublished sessions are only
// visible to staff who manage sessions.
func (q *SessionQueries) Get(ctx context.Context, id, viewerID shared.ID, canManage bool) (*session.View, error) {
	if !id.IsValid() {
		return nil, shared.ErrSessionNotFound
	}
	v, err := q.sessions.GetView(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	if v.Status == session.StatusDraft && !canManage {
		return nil, shared.ErrSessionNotFound
	}
	return v, nil
}

// Registrants lists the non-cancelled registrations of a session.
func (q *SessionQueries) Registrants(ctx context.Context, sessionID shared.ID) ([]registration.Registrant, error) {
	if _, err := q.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	list, err := q.registrations.ListRegistrants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	if list == nil {
		list = []registration.Registrant{}
	}
	return list, nil
}

// MyRegistrations lists the user's registrations, newest session first.
func (q *SessionQueries) MyRegistrations(ctx context.Context, userID shared.ID) ([]registration.WithSession, error) {
	list, err := q.registrations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if list == nil {
		list = []registration.WithSession{}
	}
	return list, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PET & ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// PetQueries serves pet and achievement reads.
type PetQueries struct {
	pets progression.PetRepository
}

// NewPetQueries creates a new PetQueries.
func NewPetQueries(pets progression.PetRepository) *PetQueries {
	return &PetQueries{pets: pets}
}

// ExperienceHistory returns the user's experience log, newest first.
func (q *PetQueries) ExperienceHistory(ctx context.Context, userID shared.ID, limit int) ([]progression.ExperienceEntry, error) {
	pet, err := q.pets.GetByUser(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return []progression.ExperienceEntry{}, nil
		}
		return nil, err
	}
	entries, err := q.pets.ExperienceHistory(ctx, pet.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("experience history: %w", err)
	}
	if entries == nil {
		entries = []progression.ExperienceEntry{}
	}
	return entries, nil
}

// AchievementCatalog returns every achievement definition.
func AchievementCatalog() []progression.AchievementDefinition {
	return progression.Catalog()
}
