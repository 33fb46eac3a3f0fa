// Package metrics holds the portal's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registration metrics
	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Progression metrics
	ExperienceGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_experience_granted_total",
			Help: "Experience points granted by reason",
		},
		[]string{"reason"},
	)

	AchievementsUnlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_achievements_unlocked_total",
			Help: "Achievements unlocked by type",
		},
		[]string{"type"},
	)

	ProgressionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_progression_failures_total",
			Help: "Post-commit progression steps that failed, by step",
		},
		[]string{"step"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdportal_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Background metrics
	SchedulerJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_scheduler_job_runs_total",
			Help: "Scheduler job runs by job and result",
		},
		[]string{"job", "result"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_events_published_total",
			Help: "Domain events published by type",
		},
		[]string{"type"},
	)

	EventHandlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_event_handler_failures_total",
			Help: "Event handler failures by event type",
		},
		[]string{"type"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdportal_emails_sent_total",
			Help: "Emails handed to the sender by template and result",
		},
		[]string{"template", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		RegistrationsTotal,
		ExperienceGrantedTotal,
		AchievementsUnlockedTotal,
		ProgressionFailuresTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SchedulerJobRunsTotal,
		EventsPublishedTotal,
		EventHandlerFailuresTotal,
		EmailsSentTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures one operation for a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
