// Package scheduler runs the worker's periodic jobs, such as the nightly
// streak decay. Jobs are registered with a Schedule and run on their own
// goroutine; a job never overlaps with itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pdportal/pd-portal/pkg/metrics"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Manual      bool
	Error       error
}

// Duration returns how long the run took.
func (r JobResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool {
	return r.Error == nil
}

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Running     bool
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	running   bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger

	// Timezone for schedule calculations. Defaults to UTC.
	Timezone *time.Location

	// TickInterval is how often due jobs are checked. Defaults to 1s.
	TickInterval time.Duration

	// HistorySize bounds the number of results kept. Defaults to 100.
	HistorySize int
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.Mutex

	logger      *slog.Logger
	timezone    *time.Location
	tick        time.Duration
	historySize int
	now         func() time.Time

	jobs    map[string]*scheduledJob
	history []JobResult

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Scheduler{
		logger:      cfg.Logger.With("component", "scheduler"),
		timezone:    cfg.Timezone,
		tick:        cfg.TickInterval,
		historySize: cfg.HistorySize,
		now:         time.Now,
		jobs:        make(map[string]*scheduledJob),
	}
}

// Register adds a job under its unique name.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(s.now().In(s.timezone)),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.runLoop()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

// runDue claims every due job under the lock so a slow run is never
// started twice.
func (s *Scheduler) runDue() {
	now := s.now().In(s.timezone)

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.running || now.Before(sj.nextRun) {
			continue
		}
		sj.running = true
		sj.nextRun = sj.schedule.Next(now)
		due = append(due, sj)
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(ctx, sj, false)
		}(sj)
	}
}

// RunNow executes a job immediately and returns its result.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if sj.running {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	sj.running = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return result, result.Error
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	log := s.logger.With("job", name, "manual", manual)
	log.Info("job started")

	result := JobResult{JobName: name, StartedAt: s.now(), Manual: manual}
	result.Error = s.safeRun(ctx, sj.job)
	result.CompletedAt = s.now()

	outcome := "success"
	if result.Error != nil {
		outcome = "failure"
	}
	metrics.SchedulerJobRunsTotal.WithLabelValues(name, outcome).Inc()

	s.mu.Lock()
	sj.running = false
	sj.lastRun = result.StartedAt
	sj.runCount++
	if result.Error != nil {
		sj.failCount++
	}
	s.history = append(s.history, result)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
	s.mu.Unlock()

	if result.Error != nil {
		log.Error("job failed", "duration", result.Duration(), "error", result.Error)
	} else {
		log.Info("job completed", "duration", result.Duration())
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// ListJobs returns every registered job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Running:     sj.running,
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns up to limit recent results, newest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}
