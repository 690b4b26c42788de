// Package trip manages saved trips: where a user is going and when they must
// arrive.
package trip

import (
	"errors"
	"slices"
	"time"

	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/routing"
)

// Repository errors.
var (
	ErrTripNotFound = errors.New("trip not found")
)

// Trip is a saved trip.
type Trip struct {
	ID     string
	UserID string
	Label  string

	// Origin is an optional fixed start point. When nil the user's last known
	// location is used.
	Origin      *geo.Location
	Destination geo.Location

	// ArrivalTime is the target arrival. For repeating trips only its local
	// time of day in TimeZone is used.
	ArrivalTime time.Time
	TimeZone    string

	// BufferMinutes overrides the user's default buffer when set.
	BufferMinutes *int

	RepeatDays []time.Weekday
	Active     bool
	LastRoute  *routing.RouteSnapshot
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Location returns the trip's time zone, or UTC when unset or unknown.
func (t *Trip) Location() *time.Location {
	if t.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Repeats reports whether the trip recurs on some weekdays.
func (t *Trip) Repeats() bool {
	return len(t.RepeatDays) > 0
}

// NextArrival returns the arrival time to plan for. One-off trips return
// ArrivalTime as is, which may be in the past. Repeating trips return the
// first occurrence strictly after now.
func (t *Trip) NextArrival(now time.Time) time.Time {
	if !t.Repeats() {
		return t.ArrivalTime
	}

	loc := t.Location()
	hour, minute, sec := t.ArrivalTime.In(loc).Clock()
	today := now.In(loc)

	for d := 0; d <= 7; d++ {
		day := today.AddDate(0, 0, d)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, sec, 0, loc)
		if slices.Contains(t.RepeatDays, candidate.Weekday()) && candidate.After(now) {
			return candidate
		}
	}
	return t.ArrivalTime
}

// WeekdayFromISO converts an ISO-8601 day number (1 = Monday, 7 = Sunday).
func WeekdayFromISO(day int) time.Weekday {
	return time.Weekday(day % 7)
}

// ISOFromWeekday converts a weekday to its ISO-8601 day number.
func ISOFromWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
