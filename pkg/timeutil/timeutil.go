// Package timeutil provides campus-local time helpers.
// Attendance dates, timetable slots and absentee sweeps are all evaluated in
// the campus timezone, never in UTC.
package timeutil

import (
	"sync"
	"time"
)

// DefaultTZName is the campus timezone used when none is configured.
const DefaultTZName = "Asia/Kolkata"

// fallbackTZ is used when the tz database is unavailable (e.g. scratch images).
// India has no DST, so a fixed offset is exact.
var fallbackTZ = time.FixedZone(DefaultTZName, 5*60*60+30*60)

// LoadLocation resolves a timezone name, falling back to a fixed IST offset
// when the name is empty or the tz database is missing.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTZName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTZName {
			return fallbackTZ
		}
		return time.UTC
	}
	return loc
}

// ─────────────────────────────────────────────────────────────────────────────
// Clock
// ─────────────────────────────────────────────────────────────────────────────

// Clock abstracts the current time so use cases can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall time in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

// NewSystemClock creates a SystemClock in loc.
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = fallbackTZ
	}
	return SystemClock{Loc: loc}
}

// Now implements Clock.
func (c SystemClock) Now() time.Time {
	return time.Now().In(c.Loc)
}

// FixedClock always returns the same instant until moved.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Calendar helpers
// ─────────────────────────────────────────────────────────────────────────────

// Common layouts.
const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// StartOfDay returns 00:00:00 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatClock formats t as HH:MM.
func FormatClock(t time.Time) string {
	return t.Format(ClockLayout)
}

// ParseDate parses YYYY-MM-DD in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, loc)
}
