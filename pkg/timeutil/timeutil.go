// Package timeutil provides calendar-day helpers for the portal.
// Streaks and session dates are compared as whole days in the portal's
// configured location, not as instants.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

var (
	locationMu sync.RWMutex
	location   = time.UTC
)

// SetLocation sets the location used to decide which calendar day an
// instant falls on. Called once at startup from config.
func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	locationMu.Lock()
	location = loc
	locationMu.Unlock()
}

// LoadLocation resolves an IANA name and installs it with SetLocation.
func LoadLocation(name string) error {
	if name == "" {
		SetLocation(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("timeutil: unknown time zone %q: %w", name, err)
	}
	SetLocation(loc)
	return nil
}

// Location returns the configured location.
func Location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return location
}

// Now returns the current time in the configured location.
func Now() time.Time {
	return time.Now().In(Location())
}

// Date creates a calendar day value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CalendarDay returns the day the instant t falls on in the configured
// location. Days are represented as midnight UTC, which is also how
// PostgreSQL DATE columns come back from pgx, so days compare with Equal.
func CalendarDay(t time.Time) time.Time {
	local := t.In(Location())
	return Date(local.Year(), local.Month(), local.Day())
}

// DateOf turns a value that already names a date (a DATE column, a parsed
// YYYY-MM-DD, a session date) into a day. The year, month and day are read
// in t's own location and never shifted into the configured one.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day.
func Today() time.Time {
	return CalendarDay(time.Now())
}

// DaysBetween returns the signed number of days from the date `from` to the
// date `to`. Both are read with DateOf; the result is negative when `to` is
// before `from`.
func DaysBetween(from, to time.Time) int {
	a := DateOf(from)
	b := DateOf(to)
	return int(b.Sub(a).Hours() / 24)
}

// Date formats.
const (
	FormatDate = "2006-01-02"
	FormatTime = "15:04"
)

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(FormatDate, value)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t.Year(), t.Month(), t.Day()), nil
}

// ParseClock parses an HH:MM wall-clock time and returns minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse(FormatTime, value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatDateStr formats a calendar day as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}
