// Package labtime converts between wall-clock input in the lab's local
// timezone and the canonical UTC instants that are stored, and defines the
// day, working-window and week boundaries used by booking and schedule logic.
package labtime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Embedded zone database so the configured zone loads on minimal images.
	_ "time/tzdata"
)

// Default working window, in local hours.
const (
	DefaultWorkdayStartHour = 9
	DefaultWorkdayEndHour   = 17
	WorkWeekDays            = 5
)

// ErrInvalidTime is returned for malformed date or time input.
var ErrInvalidTime = errors.New("invalid date/time format")

// Layouts accepted for timestamps that carry no zone. They are read in the
// lab's local zone.
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// zonedLayouts carry their own offset, with or without seconds and with
// either a colon or a compact offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Zone is the lab's timezone together with its working window.
type Zone struct {
	loc       *time.Location
	startHour int
	endHour   int
	now       func() time.Time
}

// Option customizes a Zone.
type Option func(*Zone)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(z *Zone) {
		z.now = now
	}
}

// WithWorkingWindow sets the local working hours [start, end).
func WithWorkingWindow(startHour, endHour int) Option {
	return func(z *Zone) {
		z.startHour = startHour
		z.endHour = endHour
	}
}

// New creates a Zone for loc.
func New(loc *time.Location, opts ...Option) *Zone {
	z := &Zone{
		loc:       loc,
		startHour: DefaultWorkdayStartHour,
		endHour:   DefaultWorkdayEndHour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Load creates a Zone from an IANA zone name such as "Africa/Addis_Ababa".
func Load(name string, opts ...Option) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return New(loc, opts...), nil
}

// Location returns the lab's local zone.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// Now returns the current time in the local zone.
func (z *Zone) Now() time.Time {
	return z.now().In(z.loc)
}

// ToCanonical returns the stored representation of t.
func (z *Zone) ToCanonical(t time.Time) time.Time {
	return t.UTC()
}

// ToLocal converts a stored instant for display.
func (z *Zone) ToLocal(t time.Time) time.Time {
	return t.In(z.loc)
}

// ParseWall parses a timestamp. Input without an explicit zone is assumed to
// be in the local zone. The result is canonical.
func (z *Zone) ParseWall(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, z.loc); err == nil {
			return z.ToCanonical(t), nil
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return z.ToCanonical(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// ParseDate parses YYYY-MM-DD as local midnight of that date.
func (z *Zone) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// Midnight returns local midnight of the local day containing t.
func (z *Zone) Midnight(t time.Time) time.Time {
	y, m, d := t.In(z.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, z.loc)
}

// WorkingWindow returns the canonical [start, end) of the working window on
// the local day containing day.
func (z *Zone) WorkingWindow(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(z.loc).Date()
	start := time.Date(y, m, d, z.startHour, 0, 0, 0, z.loc)
	end := time.Date(y, m, d, z.endHour, 0, 0, 0, z.loc)
	return z.ToCanonical(start), z.ToCanonical(end)
}

// DayBounds returns the canonical [midnight, next midnight) of the local day
// containing day.
func (z *Zone) DayBounds(day time.Time) (time.Time, time.Time) {
	start := z.Midnight(day)
	y, m, d := start.Date()
	end := time.Date(y, m, d+1, 0, 0, 0, 0, z.loc)
	return z.ToCanonical(start), z.ToCanonical(end)
}

// Tomorrow returns the canonical bounds of the next local day.
func (z *Zone) Tomorrow() (time.Time, time.Time) {
	y, m, d := z.Now().Date()
	return z.DayBounds(time.Date(y, m, d+1, 12, 0, 0, 0, z.loc))
}

// WeekStart returns the most recent local Monday at local midnight.
func (z *Zone) WeekStart(t time.Time) time.Time {
	midnight := z.Midnight(t)
	offset := (int(midnight.Weekday()) + 6) % 7 // Monday == 0
	y, m, d := midnight.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, z.loc)
}

// WeekDays returns local midnight of Monday through Friday of t's week.
func (z *Zone) WeekDays(t time.Time) []time.Time {
	monday := z.WeekStart(t)
	y, m, d := monday.Date()
	days := make([]time.Time, WorkWeekDays)
	for i := range days {
		days[i] = time.Date(y, m, d+i, 0, 0, 0, 0, z.loc)
	}
	return days
}

// IsLaterLocalDay reports whether the local calendar date of a is strictly
// after the local calendar date of b.
func (z *Zone) IsLaterLocalDay(a, b time.Time) bool {
	return z.Midnight(a).After(z.Midnight(b))
}

// FormatDate renders the local date of t as YYYY-MM-DD.
func (z *Zone) FormatDate(t time.Time) string {
	return t.In(z.loc).Format("2006-01-02")
}
