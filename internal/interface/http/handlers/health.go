// Package handlers holds the health checks behind /health and /ready.
package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdportal/pd-portal/pkg/circuitbreaker"
)

// HealthChecker reports the service status.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc performs a single check and returns an error if it fails.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	Healthy bool `json:"healthy"`
	Ready   bool `json:"ready"`

	// Degraded is set when only soft checks failed.
	Degraded bool `json:"degraded,omitempty"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Critical bool   `json:"critical"`
	Duration string `json:"duration,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

const checkTimeout = 5 * time.Second

// CompositeHealthChecker runs registered checks concurrently. A failing
// critical check makes the service unhealthy and not ready; a failing soft
// check only marks it degraded.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]registeredCheck
	startTime time.Time
	version   string
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// NewCompositeHealthChecker creates a new composite health checker.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]registeredCheck),
		startTime: time.Now(),
		version:   version,
	}
}

// AddCheck registers a critical check, replacing one with the same name.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, check, true)
}

// AddSoftCheck registers a non-critical check.
func (c *CompositeHealthChecker) AddSoftCheck(name string, check HealthCheckFunc) {
	c.add(name, check, false)
}

func (c *CompositeHealthChecker) add(name string, check HealthCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: check, critical: critical}
}

// Check runs every check with a per-check timeout.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check registeredCheck) {
			defer wg.Done()
			result := run(ctx, check)

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failed []string
	for name, result := range status.Checks {
		if result.Healthy {
			continue
		}
		failed = append(failed, name)
		if result.Critical {
			status.Healthy = false
			status.Ready = false
		} else {
			status.Degraded = true
		}
	}

	switch {
	case len(checks) == 0:
		status.Message = "No health checks registered"
	case len(failed) == 0:
		status.Message = "All checks passed"
	default:
		sort.Strings(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func run(ctx context.Context, check registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := check.fn(ctx)

	result := CheckResult{
		Healthy:  err == nil,
		Message:  "OK",
		Critical: check.critical,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the PostgreSQL connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck fails when p cannot be reached.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// BreakerStater exposes a circuit breaker state.
type BreakerStater interface {
	BreakerState() circuitbreaker.State
}

// ErrBreakerOpen is reported while the guarded dependency is failing.
var ErrBreakerOpen = errors.New("circuit breaker open")

// NewBreakerCheck fails while the breaker is open. Half-open counts as
// healthy so probes do not flap during recovery.
func NewBreakerCheck(b BreakerStater) HealthCheckFunc {
	return func(context.Context) error {
		if b.BreakerState() == circuitbreaker.StateOpen {
			return ErrBreakerOpen
		}
		return nil
	}
}

// NoopHealthChecker always reports healthy.
type NoopHealthChecker struct {
	startTime time.Time
}

// NewNoopHealthChecker creates a new noop health checker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{startTime: time.Now()}
}

// Check always returns healthy status.
func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}
