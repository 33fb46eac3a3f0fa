// Package memory holds in-process implementations of every repository. It
// backs the "memory" storage driver for local runs and the application
// tests. One mutex guards the whole store, which gives every operation the
// same serialization PostgreSQL row locks give the real repositories.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// Store is the shared state behind the repositories.
type Store struct {
	mu sync.Mutex

	users         map[shared.ID]user.User
	sessions      map[shared.ID]session.Session
	registrations []registration.Registration
	pets          map[shared.ID]progression.Pet // by user
	xpLog         []progression.ExperienceEntry
	streaks       map[shared.ID]progression.Streak // by user
	achievements  []progression.Achievement
}

// Repositories groups the repository views of one Store.
type Repositories struct {
	Users         *UserRepository
	Sessions      *SessionRepository
	Registrations *RegistrationRepository
	Pets          *PetRepository
	Streaks       *StreakRepository
	Achievements  *AchievementRepository
}

// NewRepositories creates an empty store and its repositories.
func NewRepositories() *Repositories {
	s := &Store{
		users:    make(map[shared.ID]user.User),
		sessions: make(map[shared.ID]session.Session),
		pets:     make(map[shared.ID]progression.Pet),
		streaks:  make(map[shared.ID]progression.Streak),
	}
	return &Repositories{
		Users:         &UserRepository{s},
		Sessions:      &SessionRepository{s},
		Registrations: &RegistrationRepository{s},
		Pets:          &PetRepository{s},
		Streaks:       &StreakRepository{s},
		Achievements:  &AchievementRepository{s},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository.
type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email.String(), u.Email.String()) {
			return shared.ErrUserAlreadyExists
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id shared.ID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email shared.Email) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email.String(), email.String()) {
			return &u, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

func (r *UserRepository) UpdateRole(_ context.Context, id shared.ID, role user.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = u
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository.
type SessionRepository struct{ s *Store }

func (r *SessionRepository) Create(_ context.Context, s *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[s.ID] = *s
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id shared.ID) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return &s, nil
}

func (r *SessionRepository) GetView(_ context.Context, id, viewerID shared.ID) (*session.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	v := r.s.view(s, viewerID)
	return &v, nil
}

func (r *SessionRepository) ListPublished(_ context.Context, dates shared.TimeRange, viewerID shared.ID) ([]session.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var views []session.View
	for _, s := range r.s.sessions {
		if s.Status != session.StatusPublished || !dates.Contains(s.SessionDate) {
			continue
		}
		views = append(views, r.s.view(s, viewerID))
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].SessionDate.Equal(views[j].SessionDate) {
			return views[i].SessionDate.Before(views[j].SessionDate)
		}
		return views[i].StartTime < views[j].StartTime
	})
	return views, nil
}

func (r *SessionRepository) UpdateStatus(_ context.Context, id shared.ID, status session.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	r.s.sessions[id] = s
	return nil
}

func (s *Store) view(sess session.Session, viewerID shared.ID) session.View {
	count, mine := s.activeFor(sess.ID, viewerID)
	return session.NewView(sess, count, mine)
}

func (s *Store) activeFor(sessionID, userID shared.ID) (count int, registered bool) {
	for _, reg := range s.registrations {
		if reg.SessionID != sessionID || !reg.Status.IsActive() {
			continue
		}
		count++
		if reg.UserID == userID {
			registered = true
		}
	}
	return count, registered
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationRepository implements registration.Repository.
type RegistrationRepository struct{ s *Store }

func (r *RegistrationRepository) Register(_ context.Context, userID, sessionID shared.ID) (*registration.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if _, ok := r.s.users[userID]; !ok {
		return nil, shared.ErrUserNotFound
	}
	count, mine := r.s.activeFor(sessionID, userID)
	if err := registration.Admit(&sess, mine, count); err != nil {
		return nil, err
	}

	reg := registration.New(userID, sessionID)
	r.s.registrations = append(r.s.registrations, *reg)
	return reg, nil
}

func (r *RegistrationRepository) Cancel(_ context.Context, userID, sessionID shared.ID) (*registration.Registration, error) {
	return r.update(sessionID, userID, shared.ErrRegistrationNotFound, func(reg *registration.Registration) error {
		return reg.Cancel()
	})
}

func (r *RegistrationRepository) MarkAttendance(_ context.Context, sessionID, userID shared.ID, attended bool) (*registration.Registration, error) {
	return r.update(sessionID, userID, shared.ErrInvalidAttendanceMark, func(reg *registration.Registration) error {
		return reg.MarkAttendance(attended)
	})
}

func (r *RegistrationRepository) update(sessionID, userID shared.ID, missing error, apply func(*registration.Registration) error) (*registration.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.registrations {
		reg := &r.s.registrations[i]
		if reg.SessionID != sessionID || reg.UserID != userID || !reg.Status.IsActive() {
			continue
		}
		if err := apply(reg); err != nil {
			return nil, err
		}
		out := *reg
		return &out, nil
	}
	return nil, missing
}

func (r *RegistrationRepository) ListForUser(_ context.Context, userID shared.ID) ([]registration.WithSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []registration.WithSession
	for _, reg := range r.s.registrations {
		if reg.UserID != userID {
			continue
		}
		s := r.s.sessions[reg.SessionID]
		out = append(out, registration.WithSession{
			Registration: reg,
			Session: registration.SessionSummary{
				ID: s.ID, Title: s.Title, SessionDate: s.SessionDate,
				StartTime: s.StartTime, EndTime: s.EndTime,
				Location: s.Location, PresenterName: s.PresenterName,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Session.SessionDate.After(out[j].Session.SessionDate)
	})
	return out, nil
}

func (r *RegistrationRepository) ListRegistrants(_ context.Context, sessionID shared.ID) ([]registration.Registrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []registration.Registrant
	for _, reg := range r.s.registrations {
		if reg.SessionID != sessionID || reg.Status == registration.StatusCancelled {
			continue
		}
		u := r.s.users[reg.UserID]
		out = append(out, registration.Registrant{
			Registration: reg,
			User: registration.UserSummary{
				ID: u.ID, Email: u.Email.String(), FirstName: u.FirstName, LastName: u.LastName,
			},
		})
	}
	return out, nil
}

func (r *RegistrationRepository) CountForUser(_ context.Context, userID shared.ID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	distinct := make(map[shared.ID]bool)
	for _, reg := range r.s.registrations {
		if reg.UserID == userID && reg.Status.CountsTowardSessions() {
			distinct[reg.SessionID] = true
		}
	}
	return len(distinct), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PETS
// ══════════════════════════════════════════════════════════════════════════════

// PetRepository implements progression.PetRepository.
type PetRepository struct{ s *Store }

func (r *PetRepository) GetByUser(_ context.Context, userID shared.ID) (*progression.Pet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pets[userID]
	if !ok {
		return nil, shared.ErrPetNotFound
	}
	return &p, nil
}

func (r *PetRepository) GetByID(_ context.Context, petID shared.ID) (*progression.Pet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.petByID(petID)
	if !ok {
		return nil, shared.ErrPetNotFound
	}
	return p, nil
}

func (r *PetRepository) Create(_ context.Context, pet *progression.Pet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pets[pet.UserID]; ok {
		return shared.ErrPetAlreadyExists
	}
	r.s.pets[pet.UserID] = *pet
	return nil
}

func (r *PetRepository) GetOrCreate(_ context.Context, userID shared.ID) (*progression.Pet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.pets[userID]; ok {
		return &p, nil
	}
	if _, ok := r.s.users[userID]; !ok {
		return nil, shared.ErrUserNotFound
	}
	p, err := progression.NewPet(userID, "", "")
	if err != nil {
		return nil, err
	}
	r.s.pets[userID] = *p
	return p, nil
}

func (r *PetRepository) AddExperience(_ context.Context, g progression.ExperienceGrant) (*progression.ExperienceResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.petByID(g.PetID)
	if !ok {
		return nil, shared.ErrPetNotFound
	}
	previous, err := p.GainExperience(g.Amount)
	if err != nil {
		return nil, err
	}
	r.s.pets[p.UserID] = *p

	entry := progression.ExperienceEntry{
		ID: shared.NewID(), PetID: p.ID, Amount: g.Amount,
		Reason: g.Reason, SessionID: g.SessionID, CreatedAt: time.Now().UTC(),
	}
	r.s.xpLog = append(r.s.xpLog, entry)
	return &progression.ExperienceResult{Pet: p, PreviousLevel: previous, Entry: entry}, nil
}

func (r *PetRepository) Rename(_ context.Context, petID shared.ID, name string) (*progression.Pet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.petByID(petID)
	if !ok {
		return nil, shared.ErrPetNotFound
	}
	if err := p.Rename(name); err != nil {
		return nil, err
	}
	r.s.pets[p.UserID] = *p
	return p, nil
}

func (r *PetRepository) IncrementSessionsAttended(_ context.Context, petID shared.ID) (*progression.Pet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.petByID(petID)
	if !ok {
		return nil, shared.ErrPetNotFound
	}
	p.TotalSessionsAttended++
	p.UpdatedAt = time.Now().UTC()
	r.s.pets[p.UserID] = *p
	return p, nil
}

func (r *PetRepository) ExperienceHistory(_ context.Context, petID shared.ID, limit int) ([]progression.ExperienceEntry, error) {
	limit = progression.NormalizeHistoryLimit(limit)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []progression.ExperienceEntry
	for i := len(r.s.xpLog) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.xpLog[i].PetID == petID {
			out = append(out, r.s.xpLog[i])
		}
	}
	return out, nil
}

func (s *Store) petByID(id shared.ID) (*progression.Pet, bool) {
	for _, p := range s.pets {
		if p.ID == id {
			return &p, true
		}
	}
	return nil, false
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements progression.StreakRepository.
type StreakRepository struct{ s *Store }

func (r *StreakRepository) GetByUser(_ context.Context, userID shared.ID) (*progression.Streak, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.streaks[userID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	return &st, nil
}

func (r *StreakRepository) GetOrCreate(_ context.Context, userID shared.ID) (*progression.Streak, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.ensureStreak(userID)
	return &st, nil
}

func (r *StreakRepository) RecordActivity(_ context.Context, userID shared.ID, activityDate time.Time) (*progression.StreakUpdate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	previous := r.s.ensureStreak(userID)
	next, transition := progression.NextStreak(previous, activityDate)
	if transition.Changed() {
		next.UpdatedAt = time.Now().UTC()
		r.s.streaks[userID] = next
	}
	return &progression.StreakUpdate{Streak: &next, Previous: previous, Transition: transition}, nil
}

func (r *StreakRepository) ResetIfStale(_ context.Context, userID shared.ID, asOf time.Time) (*progression.Streak, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st := r.s.ensureStreak(userID)
	reset := st.ResetIfStale(asOf)
	if reset {
		r.s.streaks[userID] = st
	}
	return &st, reset, nil
}

func (r *StreakRepository) ListStale(_ context.Context, asOf time.Time, afterUserID shared.ID, limit int) ([]shared.ID, error) {
	day := timeutil.DateOf(asOf)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var ids []shared.ID
	for userID, st := range r.s.streaks {
		if userID > afterUserID && st.IsStale(day) {
			ids = append(ids, userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) ensureStreak(userID shared.ID) progression.Streak {
	st, ok := s.streaks[userID]
	if !ok {
		st = *progression.NewStreak(userID)
		s.streaks[userID] = st
	}
	return st
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements progression.AchievementRepository.
type AchievementRepository struct{ s *Store }

func (r *AchievementRepository) Unlock(_ context.Context, userID shared.ID, t progression.AchievementType) (*progression.Achievement, bool, error) {
	a, err := progression.NewAchievement(userID, t)
	if err != nil {
		return nil, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.hasAchievement(userID, t) {
		return nil, false, nil
	}
	r.s.achievements = append(r.s.achievements, *a)
	return a, true, nil
}

func (r *AchievementRepository) CheckAndUnlock(ctx context.Context, userID shared.ID, m progression.Milestones) ([]progression.Achievement, error) {
	var unlocked []progression.Achievement
	for _, t := range progression.EligibleAchievements(m) {
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

func (r *AchievementRepository) ListByUser(_ context.Context, userID shared.ID) ([]progression.Achievement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []progression.Achievement
	for i := len(r.s.achievements) - 1; i >= 0; i-- {
		if r.s.achievements[i].UserID == userID {
			out = append(out, r.s.achievements[i])
		}
	}
	return out, nil
}

func (r *AchievementRepository) Has(_ context.Context, userID shared.ID, t progression.AchievementType) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.hasAchievement(userID, t), nil
}

func (s *Store) hasAchievement(userID shared.ID, t progression.AchievementType) bool {
	for _, a := range s.achievements {
		if a.UserID == userID && a.Type == t {
			return true
		}
	}
	return false
}

var (
	_ user.Repository                   = (*UserRepository)(nil)
	_ session.Repository                = (*SessionRepository)(nil)
	_ registration.Repository           = (*RegistrationRepository)(nil)
	_ progression.PetRepository         = (*PetRepository)(nil)
	_ progression.StreakRepository      = (*StreakRepository)(nil)
	_ progression.AchievementRepository = (*AchievementRepository)(nil)
)
