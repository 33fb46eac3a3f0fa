// Command worker runs the PD portal background jobs.
//
// It resets streaks that lapsed without attendance on the configured cron
// schedule, by default shortly after midnight in the portal's timezone.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdportal/pd-portal/config"
	"github.com/pdportal/pd-portal/internal/app"
	"github.com/pdportal/pd-portal/internal/infrastructure/scheduler"
	"github.com/pdportal/pd-portal/internal/infrastructure/scheduler/jobs"
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
	// 1. CONFIGURATION AND STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Migrations are owned by the portal and portalctl.
	infra, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer infra.Close()
	log := infra.Log

	log.Info("starting PD portal worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"storage", cfg.Database.Driver,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.StreakResetCron)
	if err != nil {
		return fmt.Errorf("streak reset schedule: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	})

	resetJob := jobs.NewResetStaleStreaksJob(infra.Repos.Streaks, log, jobs.ResetStaleStreaksConfig{
		BatchSize: cfg.Scheduler.StreakResetBatchSize,
		Timeout:   cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(resetJob, schedule); err != nil {
		return fmt.Errorf("register %s: %w", resetJob.Name(), err)
	}

	if cfg.Scheduler.RunOnStart {
		if _, err := sched.RunNow(ctx, resetJob.Name()); err != nil {
			log.Error("catch-up run failed", "job", resetJob.Name(), "error", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	for _, job := range sched.ListJobs() {
		log.Info("job scheduled", "job", job.Name, "schedule", job.Schedule, "next_run", job.NextRun)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	log.Info("stopping scheduler, waiting for running jobs")
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", "error", err)
		return err
	}
	for _, res := range sched.History(5) {
		log.Info("recent job run",
			"job", res.JobName,
			"started_at", res.StartedAt,
			"duration", res.Duration(),
			"manual", res.Manual,
			"error", res.Error,
		)
	}
	log.Info("shutdown completed")
	return nil
}
