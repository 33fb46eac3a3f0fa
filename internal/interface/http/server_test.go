package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/application/query"
	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/infrastructure/auth"
	"github.com/pdportal/pd-portal/internal/infrastructure/persistence/memory"
	redisstore "github.com/pdportal/pd-portal/internal/infrastructure/persistence/redis"
	"github.com/pdportal/pd-portal/pkg/logger"
)

type testEnv struct {
	server *Server
	repos  *memory.Repositories
	svc    Services
}

func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()

	repos := memory.NewRepositories()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens, err := auth.NewJWTIssuer("test-secret", "pd-portal-test", time.Hour)
	require.NoError(t, err)

	progressor := command.NewProgressor(repos.Pets, repos.Streaks, repos.Achievements, repos.Registrations,
		nil, nil, command.ProgressionConfig{})
	svc := Services{
		Signup:              command.NewSignupHandler(repos.Users, hasher, nil, nil),
		Login:               command.NewLoginHandler(repos.Users, hasher, tokens),
		ChangeRole:          command.NewChangeRoleHandler(repos.Users, nil, nil),
		CreateSession:       command.NewCreateSessionHandler(repos.Sessions),
		ChangeSessionStatus: command.NewChangeSessionStatusHandler(repos.Sessions),
		Sessions:            query.NewSessionQueries(repos.Sessions, repos.Registrations),
		Register:            command.NewRegisterHandler(repos.Registrations, progressor, nil, nil),
		Cancel:              command.NewCancelRegistrationHandler(repos.Registrations, nil, nil),
		MarkAttendance:      command.NewMarkAttendanceHandler(repos.Registrations, repos.Sessions, progressor, nil, nil),
		Progress:            query.NewGetProgressSummaryHandler(repos.Pets, repos.Streaks, repos.Achievements, repos.Registrations),
		Pets:                query.NewPetQueries(repos.Pets),
		RenamePet:           command.NewRenamePetHandler(repos.Pets),
		GrantExperience:     command.NewGrantExperienceHandler(progressor),
		AwardAchievement:    command.NewAwardAchievementHandler(repos.Achievements, nil),
	}

	deps := Dependencies{
		Services: svc,
		Tokens:   tokens,
		Logger:   logger.New(logger.Options{Level: logger.LevelError, Output: &bytes.Buffer{}}),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	cfg := DefaultConfig()
	cfg.EnableMetrics = false
	return &testEnv{server: NewServer(cfg, deps), repos: repos, svc: svc}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

// signup creates an account and returns its token and id, promoting it
// when role is not staff.
func (e *testEnv) signup(t *testing.T, email, role string) (token, id string) {
	t.Helper()

	code, env := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "correct-horse", "first_name": "Ada", "last_name": "Lovelace",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var u struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &u))

	if role != "staff" {
		uid, err := shared.ParseID(u.ID)
		require.NoError(t, err)
		_, err = e.svc.ChangeRole.Handle(context.Background(), command.ChangeRoleCommand{UserID: uid, Role: role})
		require.NoError(t, err)
	}

	code, env = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res.Token, u.ID
}

func (e *testEnv) createSession(t *testing.T, token string, capacity int) string {
	t.Helper()

	code, env := e.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]interface{}{
		"title":        "Formative assessment",
		"location":     "Library",
		"session_date": "2026-11-02",
		"start_time":   "15:30",
		"end_time":     "16:30",
		"capacity":     capacity,
		"publish":      true,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var s struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s.ID
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.RequestID)

	code, _ = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, CodeNotFound, body.Error.Code)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/api/v1/sessions", "", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, CodeUnauthorized, body.Error.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		code, _ := env.do(t, http.MethodGet, "/api/v1/sessions", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("duplicate signup", func(t *testing.T) {
		env.signup(t, "dup@school.edu", "staff")
		code, body := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
			"email": "dup@school.edu", "password": "correct-horse", "first_name": "A", "last_name": "B",
		})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, CodeDuplicate, body.Error.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "dup@school.edu", "password": "wrong-horse",
		})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, CodeUnauthorized, body.Error.Code)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "dup@school.edu", "password": "x", "otp": "123",
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, CodeInvalidInput, body.Error.Code)
	})
}

func TestSessionManagementRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.signup(t, "staff@school.edu", "staff")

	code, body := env.do(t, http.MethodPost, "/api/v1/sessions", staff, map[string]interface{}{
		"title": "x", "session_date": "2026-11-02", "start_time": "15:30", "end_time": "16:30",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, CodeForbidden, body.Error.Code)
}

func TestRegistrationFlow(t *testing.T) {
	env := newTestEnv(t)
	manager, _ := env.signup(t, "manager@school.edu", "manager")
	staff, staffID := env.signup(t, "staff@school.edu", "staff")
	other, _ := env.signup(t, "other@school.edu", "staff")

	sessionID := env.createSession(t, manager, 1)

	code, body := env.do(t, http.MethodPost, "/api/v1/registrations", staff, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusCreated, code, body.Error)
	var reg command.RegisterResult
	require.NoError(t, json.Unmarshal(body.Data, &reg))
	require.NotNil(t, reg.Progression)
	assert.Equal(t, 10, reg.Progression.ExperienceGained)
	assert.Empty(t, reg.ProgressionError)

	t.Run("duplicate", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/registrations", staff, map[string]string{"session_id": sessionID})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, CodeDuplicate, body.Error.Code)
	})

	t.Run("full", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/registrations", other, map[string]string{"session_id": sessionID})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, CodeCapacityExceeded, body.Error.Code)
	})

	t.Run("session view shows seats", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, staff, nil)
		require.Equal(t, http.StatusOK, code)
		var view struct {
			RegistrationCount int  `json:"registration_count"`
			UserRegistered    bool `json:"user_registered"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &view))
		assert.Equal(t, 1, view.RegistrationCount)
		assert.True(t, view.UserRegistered)
	})

	t.Run("my registrations", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/api/v1/registrations/me", staff, nil)
		require.Equal(t, http.StatusOK, code)
		var list []json.RawMessage
		require.NoError(t, json.Unmarshal(body.Data, &list))
		assert.Len(t, list, 1)
	})

	t.Run("attendance grants experience", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/attendance", manager,
			map[string]interface{}{"user_id": staffID, "attended": true})
		require.Equal(t, http.StatusOK, code, body.Error)

		code, body = env.do(t, http.MethodGet, "/api/v1/progress", staff, nil)
		require.Equal(t, http.StatusOK, code)
		var summary struct {
			Pet struct {
				Experience int `json:"experience"`
			} `json:"pet"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &summary))
		assert.Equal(t, 35, summary.Pet.Experience)
	})

	t.Run("registrants visible to managers", func(t *testing.T) {
		code, _ := env.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/registrants", manager, nil)
		assert.Equal(t, http.StatusOK, code)
		code, _ = env.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/registrants", staff, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

func TestCancelRegistration(t *testing.T) {
	env := newTestEnv(t)
	manager, _ := env.signup(t, "manager@school.edu", "manager")
	staff, _ := env.signup(t, "staff@school.edu", "staff")
	sessionID := env.createSession(t, manager, 10)

	code, _ := env.do(t, http.MethodDelete, "/api/v1/registrations/"+sessionID, staff, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/registrations", staff, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusCreated, code)

	code, body := env.do(t, http.MethodDelete, "/api/v1/registrations/"+sessionID, staff, nil)
	require.Equal(t, http.StatusOK, code, body.Error)
	var reg struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &reg))
	assert.Equal(t, "cancelled", reg.Status)

	code, _ = env.do(t, http.MethodDelete, "/api/v1/registrations/not-an-id", staff, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateSessionRejectsMalformedClock(t *testing.T) {
	env := newTestEnv(t)
	manager, _ := env.signup(t, "manager@school.edu", "manager")

	code, body := env.do(t, http.MethodPost, "/api/v1/sessions", manager, map[string]interface{}{
		"title": "Formative assessment", "session_date": "2026-11-02", "start_time": "3.30pm", "end_time": "16:30",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, CodeInvalidInput, body.Error.Code)
}

func TestSessionStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	manager, _ := env.signup(t, "manager@school.edu", "manager")
	sessionID := env.createSession(t, manager, 10)

	code, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/status", manager, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, code, body.Error)

	code, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/status", manager, map[string]string{"status": "published"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, CodeInvalidState, body.Error.Code)

	code, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/status", manager, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, CodeInvalidInput, body.Error.Code)
}

func TestListSessionsValidatesDates(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.signup(t, "staff@school.edu", "staff")

	code, _ := env.do(t, http.MethodGet, "/api/v1/sessions?from=2026-11-10&to=2026-11-01", staff, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/sessions?from=November", staff, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/sessions", staff, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(body.Data))
}

func TestPetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.signup(t, "staff@school.edu", "staff")

	code, body := env.do(t, http.MethodPatch, "/api/v1/pet", staff, map[string]string{"name": "Pip"})
	require.Equal(t, http.StatusOK, code, body.Error)

	code, _ = env.do(t, http.MethodPost, "/api/v1/pet/experience", staff, map[string]int{"amount": 500})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/api/v1/pet/experience", staff, map[string]int{"amount": 20})
	require.Equal(t, http.StatusOK, code, body.Error)

	code, body = env.do(t, http.MethodGet, "/api/v1/pet/experience?limit=5", staff, nil)
	require.Equal(t, http.StatusOK, code)
	var entries []json.RawMessage
	require.NoError(t, json.Unmarshal(body.Data, &entries))
	assert.Len(t, entries, 1)

	code, body = env.do(t, http.MethodGet, "/api/v1/achievements/catalog", staff, nil)
	require.Equal(t, http.StatusOK, code)
	var catalog []json.RawMessage
	require.NoError(t, json.Unmarshal(body.Data, &catalog))
	assert.NotEmpty(t, catalog)
}

func TestExperienceHistoryLimit(t *testing.T) {
	env := newTestEnv(t)
	staff, id := env.signup(t, "staff@school.edu", "staff")
	ctx := context.Background()

	pet, err := env.repos.Pets.GetOrCreate(ctx, shared.ID(id))
	require.NoError(t, err)
	const grants = 60
	for i := 0; i < grants; i++ {
		_, err := env.repos.Pets.AddExperience(ctx, progression.ExperienceGrant{
			PetID: pet.ID, Amount: 1, Reason: progression.ReasonInteraction,
		})
		require.NoError(t, err)
	}

	count := func(path string) int {
		code, body := env.do(t, http.MethodGet, path, staff, nil)
		require.Equal(t, http.StatusOK, code, body.Error)
		var entries []json.RawMessage
		require.NoError(t, json.Unmarshal(body.Data, &entries))
		return len(entries)
	}
	assert.Equal(t, progression.DefaultHistoryLimit, count("/api/v1/pet/experience"))
	assert.Equal(t, 7, count("/api/v1/pet/experience?limit=7"))
	assert.Equal(t, grants, count("/api/v1/pet/experience?limit=150"))
	assert.Equal(t, progression.DefaultHistoryLimit, count("/api/v1/pet/experience?limit=-3"))

	code, _ := env.do(t, http.MethodGet, "/api/v1/pet/experience?limit=many", staff, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAwardAchievement(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.signup(t, "admin@school.edu", "admin")
	manager, _ := env.signup(t, "manager@school.edu", "manager")
	_, staffID := env.signup(t, "staff@school.edu", "staff")
	path := "/api/v1/users/" + staffID + "/achievements"

	code, _ := env.do(t, http.MethodPost, path, manager, map[string]string{"type": "perfect_attendance"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := env.do(t, http.MethodPost, path, admin, map[string]string{"type": "perfect_attendance"})
	require.Equal(t, http.StatusCreated, code, body.Error)

	code, _ = env.do(t, http.MethodPost, path, admin, map[string]string{"type": "perfect_attendance"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, path, admin, map[string]string{"type": "no_such_badge"})
	assert.Equal(t, http.StatusBadRequest, code)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string) (redisstore.RateLimitResult, error) {
	return redisstore.RateLimitResult{Allowed: s.allowed, ResetAt: time.Now().Add(time.Minute)}, s.err
}

type staticFlags bool

func (f staticFlags) RateLimiting() bool { return bool(f) }

func TestRateLimiting(t *testing.T) {
	t.Run("rejects over limit", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.RateLimiter = stubLimiter{allowed: false} })
		code, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
		assert.Equal(t, http.StatusTooManyRequests, code)
		assert.Equal(t, CodeRateLimited, body.Error.Code)
	})

	t.Run("fails open", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.RateLimiter = stubLimiter{err: errors.New("redis down")} })
		code, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("toggle off", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) {
			d.RateLimiter = stubLimiter{allowed: false}
			d.Flags = staticFlags(false)
		})
		code, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("health is never limited", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.RateLimiter = stubLimiter{allowed: false} })
		code, _ := env.do(t, http.MethodGet, "/live", "", nil)
		assert.Equal(t, http.StatusOK, code)
	})
}
