// Command portal serves the PD session registration API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdportal/pd-portal/config"
	"github.com/pdportal/pd-portal/internal/app"
	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/application/eventhandler"
	"github.com/pdportal/pd-portal/internal/application/query"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/infrastructure/auth"
	"github.com/pdportal/pd-portal/internal/infrastructure/email"
	"github.com/pdportal/pd-portal/internal/infrastructure/messaging"
	redisstore "github.com/pdportal/pd-portal/internal/infrastructure/persistence/redis"
	httpserver "github.com/pdportal/pd-portal/internal/interface/http"
	"github.com/pdportal/pd-portal/internal/interface/http/handlers"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND INFRASTRUCTURE
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	infra, err := app.Open(ctx, cfg, app.Options{Redis: true, Migrate: cfg.Database.AutoMigrate})
	if err != nil {
		return err
	}
	defer infra.Close()
	log := infra.Log

	log.Info("starting PD portal",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"storage", cfg.Database.Driver,
		"redis", infra.Redis != nil,
	)

	bus, err := infra.NewEventBus()
	if err != nil {
		return err
	}
	repos := infra.Repos

	// ─────────────────────────────────────────────────────────────────────────
	// 2. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	progressor := command.NewProgressor(repos.Pets, repos.Streaks, repos.Achievements, repos.Registrations,
		bus, log, command.ProgressionConfig{
			RegistrationXP:   cfg.Progression.RegistrationXP,
			AttendanceXP:     cfg.Progression.AttendanceXP,
			MaxInteractionXP: cfg.Progression.MaxInteractionXP,
		})
	progressor.SetToggle(cfg.Features.Toggle(config.FeatureProgression))

	services := httpserver.Services{
		Signup:              command.NewSignupHandler(repos.Users, hasher, bus, log),
		Login:               command.NewLoginHandler(repos.Users, hasher, tokens),
		ChangeRole:          command.NewChangeRoleHandler(repos.Users, bus, log),
		CreateSession:       command.NewCreateSessionHandler(repos.Sessions),
		ChangeSessionStatus: command.NewChangeSessionStatusHandler(repos.Sessions),
		Sessions:            query.NewSessionQueries(repos.Sessions, repos.Registrations),
		Register:            command.NewRegisterHandler(repos.Registrations, progressor, bus, log),
		Cancel:              command.NewCancelRegistrationHandler(repos.Registrations, bus, log),
		MarkAttendance:      command.NewMarkAttendanceHandler(repos.Registrations, repos.Sessions, progressor, bus, log),
		Progress:            query.NewGetProgressSummaryHandler(repos.Pets, repos.Streaks, repos.Achievements, repos.Registrations),
		Pets:                query.NewPetQueries(repos.Pets),
		RenamePet:           command.NewRenamePetHandler(repos.Pets),
		GrantExperience:     command.NewGrantExperienceHandler(progressor),
		AwardAchievement:    command.NewAwardAchievementHandler(repos.Achievements, bus),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	sender := email.NewResilientSender(email.NewLogSender(cfg.Email.From, log), log)
	claimer := infra.Claimer()

	subscribe := func(eventType shared.EventType, name string, handler shared.EventHandler) error {
		return bus.Subscribe(eventType, messaging.Chain(handler,
			messaging.LoggingMiddleware(log, name),
			messaging.ClaimMiddleware(claimer, name, cfg.Email.ClaimTTL, log),
			messaging.TimeoutMiddleware(cfg.Email.HandlerTimeout),
		))
	}

	confirmation := eventhandler.NewRegistrationConfirmationHandler(repos.Users, repos.Sessions, sender,
		cfg.Features.Toggle(config.FeatureRegistrationEmails), log)
	if err := subscribe(shared.EventRegistrationCreated, "registration_confirmation", confirmation.Handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := bus.SubscribeAll(func(event shared.Event) error {
		log.Debug("domain event", "event_type", event.EventType(), "aggregate_id", event.AggregateID())
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	achievementEmail := eventhandler.NewAchievementEmailHandler(repos.Users, sender,
		cfg.Features.Toggle(config.FeatureAchievementEmails), log)
	if err := subscribe(shared.EventAchievementUnlocked, "achievement_email", achievementEmail.Handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if infra.DB != nil {
		health.AddCheck("database", handlers.NewPingCheck(infra.DB))
	}
	if infra.Redis != nil {
		health.AddSoftCheck("redis", handlers.NewPingCheck(infra.Redis))
	}
	health.AddSoftCheck("email", handlers.NewBreakerCheck(sender))

	deps := httpserver.Dependencies{
		Services:      services,
		Tokens:        tokens,
		Flags:         cfg.Features,
		HealthChecker: health,
		Logger:        infra.Logger,
	}
	if infra.Redis != nil {
		deps.RateLimiter = redisstore.NewRateLimiter(infra.Redis.Client(), cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

	server := httpserver.NewServer(httpConfig, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("PD portal is running", "http_address", httpConfig.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}
	log.Info("shutdown completed")
	return nil
}
