// Package email renders portal emails and hands them to a transport. The
// bundled LogSender writes them to the log; ResilientSender adds retries and
// a circuit breaker around any Sender.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdportal/pd-portal/internal/domain/notification"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/circuitbreaker"
	"github.com/pdportal/pd-portal/pkg/metrics"
	"github.com/pdportal/pd-portal/pkg/retry"
)

func notificationError(tpl notification.Template) error {
	return shared.WrapError("email", "Render", shared.ErrInvalidInput,
		fmt.Sprintf("unknown template %q", tpl), shared.ErrUnknownTemplate)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SENDER
// ══════════════════════════════════════════════════════════════════════════════

// LogSender renders emails and logs them instead of delivering them.
type LogSender struct {
	from   string
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(from string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{from: from, logger: logger.With("component", "email")}
}

// Send implements notification.Sender.
func (s *LogSender) Send(ctx context.Context, tpl notification.Template, to string, vars map[string]string) error {
	msg, err := notification.NewMessage(tpl, to, vars)
	if err != nil {
		return err
	}
	rendered, err := Render(msg.Template, msg.Vars)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("email",
		"template", msg.Template,
		"from", s.from,
		"to", msg.To,
		"subject", rendered.Subject,
		"body", rendered.Body,
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESILIENT SENDER
// ══════════════════════════════════════════════════════════════════════════════

// ResilientSender retries transient failures of next and stops calling it
// while the breaker is open. Validation errors are never retried.
type ResilientSender struct {
	next    notification.Sender
	retrier retry.Policy
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewResilientSender wraps next.
func NewResilientSender(next notification.Sender, logger *slog.Logger) *ResilientSender {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "email")
	return &ResilientSender{
		next: next,
		retrier: retry.Email(func(attempt int, err error, delay time.Duration) {
			logger.Warn("retrying email", "attempt", attempt, "delay", delay, "error", err)
		}),
		breaker: circuitbreaker.New("email",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithSuccessThreshold(1),
			circuitbreaker.WithTimeout(30*time.Second),
			circuitbreaker.WithIsFailure(func(err error) bool { return !shared.IsValidation(err) }),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}),
		),
		logger: logger,
	}
}

// Send implements notification.Sender.
func (s *ResilientSender) Send(ctx context.Context, tpl notification.Template, to string, vars map[string]string) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.next.Send(ctx, tpl, to, vars)
		})
		if err == nil {
			return nil
		}
		if shared.IsValidation(err) ||
			errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
			errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
			errors.Is(err, context.Canceled) {
			return retry.Permanent(err)
		}
		return err
	})

	result := "sent"
	if err != nil {
		result = "failed"
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			err = fmt.Errorf("%w: %v", shared.ErrEmailUnavailable, err)
		}
	}
	metrics.EmailsSentTotal.WithLabelValues(tpl.String(), result).Inc()
	return err
}

// BreakerState reports the breaker state for health checks.
func (s *ResilientSender) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

var (
	_ notification.Sender = (*LogSender)(nil)
	_ notification.Sender = (*ResilientSender)(nil)
)
