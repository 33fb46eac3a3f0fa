package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// minInterval keeps a misconfigured interval from spinning the run loop.
const minInterval = time.Second

// IntervalSchedule runs a job every Interval, measured from the previous
// planned run.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. Intervals below one
// second are raised to one second.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval < minInterval {
		interval = minInterval
	}
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// ParseSchedule accepts either "@every <duration>" or a five-field cron
// expression.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCronExpression(expr)
}
