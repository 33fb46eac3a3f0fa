// Package app assembles the infrastructure shared by the portal, the
// worker and portalctl: loggers, storage, Redis and the event bus.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdportal/pd-portal/config"
	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/registration"
	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/internal/domain/user"
	"github.com/pdportal/pd-portal/internal/infrastructure/messaging"
	"github.com/pdportal/pd-portal/internal/infrastructure/persistence/memory"
	"github.com/pdportal/pd-portal/internal/infrastructure/persistence/postgres"
	redisstore "github.com/pdportal/pd-portal/internal/infrastructure/persistence/redis"
	"github.com/pdportal/pd-portal/pkg/logger"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// Repositories groups every storage port.
type Repositories struct {
	Users         user.Repository
	Sessions      session.Repository
	Registrations registration.Repository
	Pets          progression.PetRepository
	Streaks       progression.StreakRepository
	Achievements  progression.AchievementRepository
}

// EventBus is an event bus that must be closed on shutdown.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Infrastructure holds opened resources. DB is nil with the memory driver
// and Redis is nil when disabled.
type Infrastructure struct {
	Config *config.Config
	Logger *logger.Logger
	Log    *slog.Logger

	DB    *postgres.Connection
	Redis *redisstore.Cache
	Repos Repositories

	closers []func()
}

// NewLoggers builds the structured logger and the slog view of it. With
// LOG_FORMAT=text slog writes plain text instead.
func NewLoggers(cfg config.ObservabilityConfig) (*logger.Logger, *slog.Logger) {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	structured := logger.New(opts)

	if cfg.LogFormat == "text" {
		level := slog.LevelInfo
		_ = level.UnmarshalText([]byte(cfg.LogLevel))
		return structured, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return structured, structured.Slog()
}

// Options selects optional resources.
type Options struct {
	// Redis connects to Redis unless it is disabled in config.
	Redis bool

	// Migrate applies pending migrations on PostgreSQL.
	Migrate bool
}

// Open connects storage and, when asked, Redis.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Infrastructure, error) {
	structured, log := NewLoggers(cfg.Observability)
	slog.SetDefault(log)
	timeutil.SetLocation(cfg.App.Location)

	infra := &Infrastructure{Config: cfg, Logger: structured, Log: log}

	if err := infra.openStorage(ctx, opts.Migrate); err != nil {
		infra.Close()
		return nil, err
	}

	if opts.Redis && !cfg.Redis.Disabled {
		cache, err := redisstore.NewCache(redisstore.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		infra.Redis = cache
		infra.closers = append(infra.closers, func() { _ = cache.Close() })
		log.Info("redis connection established")
	}

	return infra, nil
}

func (i *Infrastructure) openStorage(ctx context.Context, migrate bool) error {
	cfg := i.Config.Database
	if cfg.Driver == config.DriverMemory {
		repos := memory.NewRepositories()
		i.Repos = Repositories{
			Users:         repos.Users,
			Sessions:      repos.Sessions,
			Registrations: repos.Registrations,
			Pets:          repos.Pets,
			Streaks:       repos.Streaks,
			Achievements:  repos.Achievements,
		}
		i.Log.Warn("using in-memory storage; data is lost on restart")
		return nil
	}

	conn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:               cfg.URL,
		Host:              cfg.Host,
		Port:              cfg.Port,
		Database:          cfg.Name,
		User:              cfg.User,
		Password:          cfg.Password,
		SSLMode:           cfg.SSLMode,
		MaxConns:          int32(cfg.MaxConns),
		MinConns:          int32(cfg.MinConns),
		MaxConnLifetime:   cfg.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.ConnMaxIdleTime,
		HealthCheckPeriod: postgres.DefaultConfig().HealthCheckPeriod,
		ConnectTimeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	i.DB = conn
	i.closers = append(i.closers, conn.Close)
	i.Log.Info("database connection established")

	if migrate {
		applied, err := postgres.NewMigrator(conn).Up(ctx)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		i.Log.Info("migrations applied", "count", applied)
	}

	i.Repos = Repositories{
		Users:         postgres.NewUserRepository(conn),
		Sessions:      postgres.NewSessionRepository(conn),
		Registrations: postgres.NewRegistrationRepository(conn),
		Pets:          postgres.NewPetRepository(conn),
		Streaks:       postgres.NewStreakRepository(conn),
		Achievements:  postgres.NewAchievementRepository(conn),
	}
	return nil
}

// NewEventBus returns a Redis pub/sub bus when Redis is connected and an
// in-process bus otherwise.
func (i *Infrastructure) NewEventBus() (EventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = i.Log

	var bus EventBus
	if i.Redis == nil {
		bus = messaging.NewInMemoryEventBus(local)
	} else {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(i.Redis.Client()),
			ChannelName:    i.Config.Redis.EventChannel,
			LocalBusConfig: local,
			Logger:         i.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("event bus: %w", err)
		}
		bus = redisBus
	}
	i.closers = append(i.closers, func() { _ = bus.Close() })
	return bus, nil
}

// Claimer returns the store that deduplicates email sends across
// instances.
func (i *Infrastructure) Claimer() messaging.Claimer {
	if i.Redis != nil {
		return i.Redis
	}
	return messaging.NewLocalClaimer()
}

// Close releases resources in reverse order of opening.
func (i *Infrastructure) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
	i.closers = nil
}
