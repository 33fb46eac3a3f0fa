// Package http exposes the portal's REST API on chi. Handlers decode
// requests, call application commands and queries, and answer with the
// {success, data, error, request_id} envelope.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/application/query"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/internal/interface/http/handlers"
	"github.com/pdportal/pd-portal/pkg/logger"
	"github.com/pdportal/pd-portal/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int

	// AllowedOrigins for CORS; empty disables CORS headers.
	AllowedOrigins []string

	EnableMetrics bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
		EnableMetrics:  true,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Services are the application handlers behind the API.
type Services struct {
	Signup     *command.SignupHandler
	Login      *command.LoginHandler
	ChangeRole *command.ChangeRoleHandler

	CreateSession       *command.CreateSessionHandler
	ChangeSessionStatus *command.ChangeSessionStatusHandler
	Sessions            *query.SessionQueries

	Register       *command.RegisterHandler
	Cancel         *command.CancelRegistrationHandler
	MarkAttendance *command.MarkAttendanceHandler

	Progress         *query.GetProgressSummaryHandler
	Pets             *query.PetQueries
	RenamePet        *command.RenamePetHandler
	GrantExperience  *command.GrantExperienceHandler
	AwardAchievement *command.AwardAchievementHandler
}

// Flags are the runtime toggles the HTTP layer reads.
type Flags interface {
	RateLimiting() bool
}

// Dependencies contains everything the server needs.
type Dependencies struct {
	Services Services
	Tokens   TokenVerifier

	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter RateLimiter
	Flags       Flags

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	svc        Services
	flags      Flags
	router     chi.Router
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s := &Server{
		config: config,
		deps:   deps,
		svc:    deps.Services,
		flags:  deps.Flags,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(s.corsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, CodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if s.config.EnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.deps.RateLimiter != nil {
			r.Use(s.rateLimitMiddleware)
		}

		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)

			r.Post("/registrations", s.handleRegister)
			r.Get("/registrations/me", s.handleMyRegistrations)
			r.Delete("/registrations/{sessionID}", s.handleCancelRegistration)

			r.Get("/progress", s.handleProgress)
			r.Patch("/pet", s.handleRenamePet)
			r.Post("/pet/experience", s.handleGrantExperience)
			r.Get("/pet/experience", s.handleExperienceHistory)
			r.Get("/achievements/catalog", s.handleAchievementCatalog)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(user.RoleAdmin, user.RoleManager))
				r.Post("/sessions", s.handleCreateSession)
				r.Post("/sessions/{id}/status", s.handleChangeSessionStatus)
				r.Get("/sessions/{id}/registrants", s.handleRegistrants)
				r.Post("/sessions/{id}/attendance", s.handleMarkAttendance)
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(user.RoleAdmin))
				r.Post("/users/{id}/achievements", s.handleAwardAchievement)
				r.Put("/users/{id}/role", s.handleChangeRole)
			})
		})
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
