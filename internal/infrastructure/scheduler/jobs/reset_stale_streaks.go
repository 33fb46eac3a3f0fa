// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/progression"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

// ResetStaleStreaksJob zeroes running streaks whose last activity is more
// than one calendar day old. Readers already treat such streaks as broken;
// this job makes the stored value agree.
type ResetStaleStreaksJob struct {
	streaks progression.StreakRepository
	logger  *slog.Logger
	config  ResetStaleStreaksConfig
	now     func() time.Time
}

// ResetStaleStreaksConfig configures the job.
type ResetStaleStreaksConfig struct {
	// BatchSize is the page size used when listing stale streaks.
	BatchSize int

	// Timeout bounds a single run.
	Timeout time.Duration
}

// DefaultResetStaleStreaksConfig returns the production defaults.
func DefaultResetStaleStreaksConfig() ResetStaleStreaksConfig {
	return ResetStaleStreaksConfig{
		BatchSize: 200,
		Timeout:   5 * time.Minute,
	}
}

// ResetStaleStreaksStats summarises one run.
type ResetStaleStreaksStats struct {
	AsOf        time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Checked     int
	Reset       int
	Failed      int
}

// NewResetStaleStreaksJob creates the job.
func NewResetStaleStreaksJob(streaks progression.StreakRepository, logger *slog.Logger, config ResetStaleStreaksConfig) *ResetStaleStreaksJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultResetStaleStreaksConfig().BatchSize
	}
	return &ResetStaleStreaksJob{
		streaks: streaks,
		logger:  logger.With("job", "reset_stale_streaks"),
		config:  config,
		now:     timeutil.Now,
	}
}

// Name implements scheduler.Job.
func (j *ResetStaleStreaksJob) Name() string { return "reset_stale_streaks" }

// Description implements scheduler.Job.
func (j *ResetStaleStreaksJob) Description() string {
	return "zeroes streaks with no attended session since the day before yesterday"
}

// Run resets every stale streak as of today.
func (j *ResetStaleStreaksJob) Run(ctx context.Context) error {
	_, err := j.RunAsOf(ctx, timeutil.CalendarDay(j.now()))
	return err
}

// RunAsOf resets every streak that is stale as of the given day. Per-user
// failures are logged and counted; the run continues with the next user.
func (j *ResetStaleStreaksJob) RunAsOf(ctx context.Context, asOf time.Time) (*ResetStaleStreaksStats, error) {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stats := &ResetStaleStreaksStats{AsOf: timeutil.DateOf(asOf), StartedAt: time.Now()}
	defer func() { stats.CompletedAt = time.Now() }()

	var after shared.ID
	for {
		ids, err := j.streaks.ListStale(ctx, stats.AsOf, after, j.config.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("list stale streaks: %w", err)
		}

		for _, userID := range ids {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Checked++

			_, reset, err := j.streaks.ResetIfStale(ctx, userID, stats.AsOf)
			if err != nil {
				stats.Failed++
				j.logger.Warn("failed to reset streak", "user_id", userID, "error", err)
				continue
			}
			if reset {
				stats.Reset++
			}
		}

		if len(ids) < j.config.BatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	j.logger.Info("stale streaks reset",
		"as_of", timeutil.FormatDateStr(stats.AsOf),
		"checked", stats.Checked,
		"reset", stats.Reset,
		"failed", stats.Failed,
	)
	return stats, nil
}
