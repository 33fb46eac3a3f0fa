package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/internal/infrastructure/persistence/memory"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	repos     *memory.Repositories
	publisher *recordingPublisher
	progress  *Progressor
	register  *RegisterHandler
	attend    *MarkAttendanceHandler
}

func newFixture() *fixture {
	repos := memory.NewRepositories()
	pub := &recordingPublisher{}
	progressor := NewProgressor(repos.Pets, repos.Streaks, repos.Achievements, repos.Registrations, pub, nil, ProgressionConfig{})
	return &fixture{
		repos:     repos,
		publisher: pub,
		progress:  progressor,
		register:  NewRegisterHandler(repos.Registrations, progressor, pub, nil),
		attend:    NewMarkAttendanceHandler(repos.Registrations, repos.Sessions, progressor, pub, nil),
	}
}

func (f *fixture) user(t *testing.T, email string) *user.User {
	t.Helper()
	u := user.New(shared.Email(email), "hash", "Ada", "Lovelace")
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) session(t *testing.T, day time.Time, capacity *int) *session.Session {
	t.Helper()
	s, err := session.NewSession(session.NewSessionParams{
		Title: "Reading workshop", SessionDate: day,
		StartTime: "09:00", EndTime: "10:30", Capacity: capacity, Publish: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.repos.Sessions.Create(context.Background(), s))
	return s
}

func TestRegister_FirstStepsThenLearnerExactlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.user(t, "ada@school.org")
	one := 1

	first, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: f.session(t, timeutil.Date(2024, time.June, 10), &one).ID})
	require.NoError(t, err)
	require.Empty(t, first.ProgressionError)
	assert.Equal(t, 10, first.Progression.Pet.Experience)
	assert.Equal(t, progression.Level(1), first.Progression.Pet.Level)
	require.Len(t, first.Progression.Unlocked, 1)
	assert.Equal(t, progression.AchievementFirstSession, first.Progression.Unlocked[0].Type)

	var learner int
	for i := 1; i < 5; i++ {
		res, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: f.session(t, timeutil.Date(2024, time.June, 10+i), nil).ID})
		require.NoError(t, err)
		for _, a := range res.Progression.Unlocked {
			assert.NotEqual(t, progression.AchievementFirstSession, a.Type)
			if a.Type == progression.AchievementFiveSessions {
				learner++
				assert.Equal(t, 4, i)
			}
		}
	}
	assert.Equal(t, 1, learner)

	pet, err := f.repos.Pets.GetByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, pet.Experience)
	assert.Len(t, f.publisher.ofType(shared.EventAchievementUnlocked), 2)
	assert.Len(t, f.publisher.ofType(shared.EventRegistrationCreated), 5)
}

func TestRegister_ConcurrentLastSeats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	two := 2
	s := f.session(t, timeutil.Date(2024, time.June, 10), &two)

	const racers = 10
	users := make([]*user.User, racers)
	for i := range users {
		users[i] = f.user(t, "racer"+string(rune('a'+i))+"@school.org")
	}

	var wg sync.WaitGroup
	results := make([]*RegisterResult, racers)
	errs := make([]error, racers)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.register.Handle(ctx, RegisterCommand{UserID: users[i].ID, SessionID: s.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			assert.Empty(t, results[i].ProgressionError)
			assert.Equal(t, 10, results[i].Progression.Pet.Experience)
			continue
		}
		assert.ErrorIs(t, err, shared.ErrCapacityExceeded)
		assert.True(t, shared.IsCapacityExceeded(err))
	}
	assert.Equal(t, 2, succeeded)
	assert.Len(t, f.publisher.ofType(shared.EventRegistrationCreated), 2)

	registrants, err := f.repos.Registrations.ListRegistrants(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, registrants, 2)
}

func TestRegister_DomainFailures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	one := 1
	s := f.session(t, timeutil.Date(2024, time.June, 10), &one)
	a, b := f.user(t, "a@school.org"), f.user(t, "b@school.org")

	_, err := f.register.Handle(ctx, RegisterCommand{UserID: a.ID, SessionID: s.ID})
	require.NoError(t, err)

	_, err = f.register.Handle(ctx, RegisterCommand{UserID: a.ID, SessionID: s.ID})
	assert.ErrorIs(t, err, shared.ErrAlreadyRegistered)

	_, err = f.register.Handle(ctx, RegisterCommand{UserID: b.ID, SessionID: s.ID})
	assert.ErrorIs(t, err, shared.ErrSessionFull)

	_, err = f.register.Handle(ctx, RegisterCommand{UserID: b.ID, SessionID: shared.NewID()})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.register.Handle(ctx, RegisterCommand{UserID: b.ID, SessionID: "nope"})
	assert.True(t, shared.IsValidation(err))
}

type failingPets struct {
	progression.PetRepository
}

func (failingPets) GetOrCreate(context.Context, shared.ID) (*progression.Pet, error) {
	return nil, errors.New("connection reset")
}

func TestRegister_ProgressionFailureKeepsRegistration(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	progressor := NewProgressor(failingPets{}, f.repos.Streaks, f.repos.Achievements, f.repos.Registrations, f.publisher, nil, ProgressionConfig{})
	h := NewRegisterHandler(f.repos.Registrations, progressor, f.publisher, nil)

	u := f.user(t, "c@school.org")
	s := f.session(t, timeutil.Date(2024, time.June, 10), nil)

	res, err := h.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	assert.NotNil(t, res.Registration)
	assert.Contains(t, res.ProgressionError, "provision_pet")

	n, err := f.repos.Registrations.CountForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkAttendance_CreditsSessionDay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.user(t, "d@school.org")
	monday := timeutil.Date(2024, time.June, 10)

	for i, day := range []time.Time{monday, monday.AddDate(0, 0, 1)} {
		s := f.session(t, day, nil)
		_, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
		require.NoError(t, err)

		res, err := f.attend.Handle(ctx, MarkAttendanceCommand{SessionID: s.ID, UserID: u.ID, Attended: true})
		require.NoError(t, err)
		require.Empty(t, res.ProgressionError)
		assert.Equal(t, i+1, res.Progression.Streak.Current)
		assert.Equal(t, i+1, res.Progression.Pet.TotalSessionsAttended)
	}

	pet, err := f.repos.Pets.GetByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*10+2*25, pet.Experience)
	assert.Len(t, f.publisher.ofType(shared.EventStreakUpdated), 2)

	s := f.session(t, monday.AddDate(0, 0, 2), nil)
	_, err = f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	res, err := f.attend.Handle(ctx, MarkAttendanceCommand{SessionID: s.ID, UserID: u.ID, Attended: false})
	require.NoError(t, err)
	assert.Nil(t, res.Progression)

	_, err = f.attend.Handle(ctx, MarkAttendanceCommand{SessionID: s.ID, UserID: u.ID, Attended: true})
	assert.ErrorIs(t, err, shared.ErrInvalidAttendanceMark)
}

func TestCancel_ThenReRegister(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cancel := NewCancelRegistrationHandler(f.repos.Registrations, f.publisher, nil)
	u := f.user(t, "e@school.org")
	s := f.session(t, timeutil.Date(2024, time.June, 10), nil)

	_, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	_, err = cancel.Handle(ctx, CancelRegistrationCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	_, err = cancel.Handle(ctx, CancelRegistrationCommand{UserID: u.ID, SessionID: s.ID})
	assert.ErrorIs(t, err, shared.ErrRegistrationNotFound)

	res, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Progression.SessionCount)
	assert.Len(t, res.Progression.Unlocked, 0)
}

func TestGrantExperience_Bounds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	h := NewGrantExperienceHandler(f.progress)
	u := f.user(t, "f@school.org")

	_, err := h.Handle(ctx, GrantExperienceCommand{UserID: u.ID, Amount: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidExperience)

	_, err = h.Handle(ctx, GrantExperienceCommand{UserID: u.ID, Amount: 51})
	assert.True(t, shared.IsValidation(err))

	var out *ProgressionOutcome
	for i := 0; i < 2; i++ {
		out, err = h.Handle(ctx, GrantExperienceCommand{UserID: u.ID, Amount: 50})
		require.NoError(t, err)
	}
	assert.True(t, out.LeveledUp)
	assert.Equal(t, progression.Level(2), out.Pet.Level)
	assert.Len(t, f.publisher.ofType(shared.EventLevelUp), 1)
}

func TestProgressionToggle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	on := false
	f.progress.SetToggle(func() bool { return on })

	u := f.user(t, "toggle@school.org")
	s := f.session(t, timeutil.Date(2024, time.June, 10), nil)

	res, err := f.register.Handle(ctx, RegisterCommand{UserID: u.ID, SessionID: s.ID})
	require.NoError(t, err)
	assert.Nil(t, res.Progression)
	assert.Empty(t, res.ProgressionError)
	assert.Empty(t, f.publisher.ofType(shared.EventXPGained))

	_, err = NewGrantExperienceHandler(f.progress).Handle(ctx, GrantExperienceCommand{UserID: u.ID, Amount: 5})
	assert.ErrorIs(t, err, ErrProgressionDisabled)

	on = true
	out, err := NewGrantExperienceHandler(f.progress).Handle(ctx, GrantExperienceCommand{UserID: u.ID, Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Pet.Experience)
}

func TestAwardAchievement_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	h := NewAwardAchievementHandler(f.repos.Achievements, f.publisher)
	u := f.user(t, "g@school.org")

	res, err := h.Handle(ctx, AwardAchievementCommand{UserID: u.ID, Type: progression.AchievementPerfectAttendance})
	require.NoError(t, err)
	assert.True(t, res.Awarded)

	res, err = h.Handle(ctx, AwardAchievementCommand{UserID: u.ID, Type: progression.AchievementPerfectAttendance})
	require.NoError(t, err)
	assert.False(t, res.Awarded)

	_, err = h.Handle(ctx, AwardAchievementCommand{UserID: u.ID, Type: "secret"})
	assert.ErrorIs(t, err, shared.ErrUnknownAchievement)
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Compare(hash, p string) error {
	if hash != "h:"+p {
		return errors.New("mismatch")
	}
	return nil
}

type stubTokens struct{}

func (stubTokens) Issue(id user.Identity) (string, time.Time, error) {
	return "token-" + id.UserID.String(), time.Now().Add(time.Hour), nil
}

func TestSignupAndLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	signup := NewSignupHandler(f.repos.Users, plainHasher{}, f.publisher, nil)
	login := NewLoginHandler(f.repos.Users, plainHasher{}, stubTokens{})

	u, err := signup.Handle(ctx, SignupCommand{Email: "New@School.org", Password: "correct horse", FirstName: "N", LastName: "U"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleStaff, u.Role)

	_, err = signup.Handle(ctx, SignupCommand{Email: "new@school.org", Password: "correct horse", FirstName: "N", LastName: "U"})
	assert.ErrorIs(t, err, shared.ErrUserAlreadyExists)

	_, err = signup.Handle(ctx, SignupCommand{Email: "short@school.org", Password: "short", FirstName: "N", LastName: "U"})
	assert.ErrorIs(t, err, shared.ErrWeakPassword)

	res, err := login.Handle(ctx, LoginCommand{Email: "new@school.org", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "token-"+u.ID.String(), res.Token)

	_, err = login.Handle(ctx, LoginCommand{Email: "new@school.org", Password: "wrong"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = login.Handle(ctx, LoginCommand{Email: "ghost@school.org", Password: "wrong"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	changed, err := NewChangeRoleHandler(f.repos.Users, f.publisher, nil).Handle(ctx, ChangeRoleCommand{UserID: u.ID, Role: "manager"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleManager, changed.Role)
}

func TestChangeSessionStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	create := NewCreateSessionHandler(f.repos.Sessions)
	change := NewChangeSessionStatusHandler(f.repos.Sessions)

	s, err := create.Handle(ctx, CreateSessionCommand{
		Title: "Draft", SessionDate: timeutil.Date(2024, time.June, 10), StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusDraft, s.Status)

	_, err = change.Handle(ctx, ChangeSessionStatusCommand{SessionID: s.ID, Status: session.StatusCompleted})
	assert.ErrorIs(t, err, shared.ErrInvalidSessionStatus)

	s, err = change.Handle(ctx, ChangeSessionStatusCommand{SessionID: s.ID, Status: session.StatusPublished})
	require.NoError(t, err)
	assert.Equal(t, session.StatusPublished, s.Status)
}
