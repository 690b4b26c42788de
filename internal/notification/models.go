// Package notification manages the lifecycle of leave-time notifications:
// the deterministic ids of a trip's alerts, replacing them on reschedule,
// cancelling them, and dispatching them when due.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IDPrefix marks every notification this package manages.
const IDPrefix = "leave."

// DefaultReminderOffsets are the reminders sent ahead of the leave alert.
var DefaultReminderOffsets = []time.Duration{15 * time.Minute, 5 * time.Minute}

// Kind distinguishes the leave alert from its reminders.
type Kind string

const (
	KindLeave    Kind = "leave"
	KindReminder Kind = "reminder"
)

// Request is a notification handed to the center.
type Request struct {
	ID        string    `json:"id"`
	TripID    string    `json:"tripId"`
	UserID    string    `json:"userId"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fireAt"`
	LeaveTime time.Time `json:"leaveTime"`
}

// ScheduledSet is the live set of notifications of one trip. A reschedule
// replaces it wholesale.
type ScheduledSet struct {
	TripID      string
	UserID      string
	IDs         []string
	LeaveTime   time.Time
	ScheduledAt time.Time
}

// Center is the platform that holds pending notifications.
type Center interface {
	// Add stores a notification, replacing any with the same id.
	Add(ctx context.Context, req Request) error

	// Remove deletes the given ids. Unknown ids are ignored.
	Remove(ctx context.Context, ids []string) error

	// Pending lists every stored notification ordered by fire time.
	Pending(ctx context.Context) ([]Request, error)

	// Ack removes req after delivery, but only while the stored entry still
	// has req's fire and leave times. It reports whether it removed anything.
	Ack(ctx context.Context, req Request) (bool, error)
}

// MainID returns the id of a trip's leave alert.
func MainID(tripID string) string {
	return IDPrefix + tripID + ".main"
}

// ReminderID returns the id of a trip's reminder sent offset before leaving.
func ReminderID(tripID string, offset time.Duration) string {
	return fmt.Sprintf("%s%s.reminder%d", IDPrefix, tripID, int(offset/time.Minute))
}

// IDsFor returns every id a trip can own under the given offsets.
func IDsFor(tripID string, offsets []time.Duration) []string {
	ids := make([]string, 0, len(offsets)+1)
	ids = append(ids, MainID(tripID))
	for _, off := range offsets {
		ids = append(ids, ReminderID(tripID, off))
	}
	return ids
}

// Managed reports whether id belongs to this package.
func Managed(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}
