package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week) usable as a Schedule.
// Examples:
//   - "15 0 * * *"   - every day at 00:15, the default streak decay time
//   - "*/30 * * * *" - every 30 minutes
type CronExpression struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// ParseCronExpression parses a cron expression string.
// Format: minute hour day-of-month month day-of-week
// Supports: *, */n, n, n-m, n,m,o
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	ce := &CronExpression{raw: expr}
	var err error

	ce.minutes, err = parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}

	ce.hours, err = parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}

	ce.days, err = parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("invalid day field: %w", err)
	}

	ce.months, err = parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}

	ce.weekdays, err = parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("invalid weekday field: %w", err)
	}

	return ce, nil
}

// parseField expands one field into its sorted set of values. Each
// comma-separated item is "*", "n", "n-m", optionally followed by "/step".
func parseField(field string, min, max int) ([]int, error) {
	seen := make(map[int]bool)
	for _, item := range strings.Split(field, ",") {
		rangePart, step := item, 1
		if i := strings.IndexByte(item, '/'); i >= 0 {
			n, err := strconv.Atoi(item[i+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step in %q", item)
			}
			rangePart, step = item[:i], n
		}

		lo, hi, err := parseRange(rangePart, min, max)
		if err != nil {
			return nil, err
		}
		if step > 1 && lo == hi && rangePart != "*" {
			hi = max
		}
		for v := lo; v <= hi; v += step {
			seen[v] = true
		}
	}

	values := make([]int, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Ints(values)
	return values, nil
}

func parseRange(s string, min, max int) (int, int, error) {
	if s == "*" {
		return min, max, nil
	}
	loStr, hiStr, isRange := strings.Cut(s, "-")
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q", s)
	}
	hi := lo
	if isRange {
		if hi, err = strconv.Atoi(hiStr); err != nil {
			return 0, 0, fmt.Errorf("invalid range %q", s)
		}
	}
	if lo < min || hi > max || lo > hi {
		return 0, 0, fmt.Errorf("%q outside [%d-%d]", s, min, max)
	}
	return lo, hi, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first minute strictly after the given time that matches.
// Non-matching days and hours are skipped whole. The zero time is returned
// when nothing matches within four years (e.g. "0 0 31 2 *").
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !contains(ce.months, int(t.Month())) ||
			!contains(ce.days, t.Day()) ||
			!contains(ce.weekdays, int(t.Weekday())) {
			y, m, d := t.Date()
			t = time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !contains(ce.hours, t.Hour()) {
			t = t.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if contains(ce.minutes, t.Minute()) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func contains(values []int, v int) bool {
	i := sort.SearchInts(values, v)
	return i < len(values) && values[i] == v
}
