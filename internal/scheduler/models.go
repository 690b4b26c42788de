// Package scheduler decides when a trip's leave time is recomputed and keeps
// its notifications in step. Each trip has a mailbox drained by one goroutine,
// so passes for the same trip never overlap while different trips run in
// parallel.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/notification"
	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/preference"
	"github.com/commutetimely/leavetime/internal/trip"
)

// Errors returned by the coordinator.
var (
	ErrNoOrigin          = errors.New("no origin: no signaled location and no fixed trip origin")
	ErrRefreshThrottled  = errors.New("manual refresh throttled")
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// Trigger is the reason a pass was requested.
type Trigger int

const (
	TriggerPeriodicWake Trigger = iota
	TriggerLocationChanged
	TriggerTripEdited
	TriggerManualRefresh
	TriggerTripDeleted
)

func (t Trigger) String() string {
	switch t {
	case TriggerPeriodicWake:
		return "periodic_wake"
	case TriggerLocationChanged:
		return "location_changed"
	case TriggerTripEdited:
		return "trip_edited"
	case TriggerManualRefresh:
		return "manual_refresh"
	case TriggerTripDeleted:
		return "trip_deleted"
	default:
		return "unknown"
	}
}

// Result is what a pass did.
type Result string

const (
	ResultScheduled Result = "scheduled"
	ResultUnchanged Result = "unchanged"
	ResultCancelled Result = "cancelled"
	ResultFailed    Result = "failed"
)

// Outcome describes one finished pass.
type Outcome struct {
	TripID    string
	Trigger   Trigger
	Result    Result
	LeaveTime time.Time
	Err       error
	Duration  time.Duration
}

// TripSource is the read side of the trip store.
type TripSource interface {
	Get(ctx context.Context, id string) (*trip.Trip, error)
	ListActive(ctx context.Context) ([]*trip.Trip, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*trip.Trip, error)
}

// PreferenceSource supplies per-user scheduling preferences.
type PreferenceSource interface {
	Preferences(ctx context.Context, userID string) (*preference.Preferences, error)
}

// Recommender produces leave-time recommendations. It never fails.
type Recommender interface {
	Recommend(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time, userBufferMinutes int) prediction.Recommendation
}

// Notifier owns the notifications of trips.
type Notifier interface {
	Schedule(ctx context.Context, t *trip.Trip, rec prediction.Recommendation) (notification.ScheduledSet, error)
	Cancel(ctx context.Context, tripID string) error
	CancelUser(ctx context.Context, userID string) error
	Scheduled(tripID string) (notification.ScheduledSet, bool)
}
