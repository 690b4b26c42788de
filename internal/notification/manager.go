package notification

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/trip"
	"github.com/commutetimely/leavetime/pkg/shardmap"
)

// ManagerConfig holds configuration for the notification manager.
type ManagerConfig struct {
	Center Center

	// ReminderOffsets are how long before the leave time reminders fire.
	// Default: 15 and 5 minutes.
	ReminderOffsets []time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Manager schedules and cancels the notifications of trips.
// Calls for the same trip must not run concurrently.
type Manager struct {
	center  Center
	offsets []time.Duration
	sets    *shardmap.Map[ScheduledSet]
	logger  zerolog.Logger
	now     func() time.Time

	// delivered is the leave time of the last leave alert sent per trip.
	delivered *shardmap.Map[time.Time]
}

// NewManager creates a new notification manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ReminderOffsets == nil {
		cfg.ReminderOffsets = DefaultReminderOffsets
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		center:    cfg.Center,
		offsets:   slices.Clone(cfg.ReminderOffsets),
		sets:      shardmap.New[ScheduledSet](shardmap.DefaultShards),
		delivered: shardmap.New[time.Time](shardmap.DefaultShards),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Load rebuilds the live sets from the center after a restart.
func (m *Manager) Load(ctx context.Context) error {
	pending, err := m.center.Pending(ctx)
	if err != nil {
		return fmt.Errorf("loading pending notifications: %w", err)
	}

	for _, req := range pending {
		if !Managed(req.ID) || req.TripID == "" {
			continue
		}
		m.sets.Update(req.TripID, func(cur ScheduledSet, present bool) (ScheduledSet, bool) {
			if !present {
				cur = ScheduledSet{TripID: req.TripID, UserID: req.UserID, LeaveTime: req.LeaveTime}
			}
			cur.IDs = append(cur.IDs, req.ID)
			return cur, true
		})
	}

	m.logger.Info().Int("trips", m.sets.Len()).Msg("loaded scheduled notifications")
	return nil
}

// Schedule replaces the notifications of t with a leave alert at the
// recommended leave time and one reminder per offset still in the future.
// A leave time already in the past is delivered immediately, unless a leave
// alert for the trip was already sent and nothing has been scheduled ahead
// of now since.
func (m *Manager) Schedule(ctx context.Context, t *trip.Trip, rec prediction.Recommendation) (ScheduledSet, error) {
	if err := m.remove(ctx, t.ID); err != nil {
		return ScheduledSet{}, err
	}

	now := m.now()
	leave := rec.Prediction.LeaveTime
	name := destinationName(t)

	main := Request{
		ID:        MainID(t.ID),
		TripID:    t.ID,
		UserID:    t.UserID,
		Kind:      KindLeave,
		Title:     "Time to leave for " + name,
		Body:      rec.Prediction.Explanation,
		FireAt:    leave,
		LeaveTime: leave,
	}
	var requests []Request
	_, alerted := m.delivered.Get(t.ID)
	switch {
	case leave.After(now):
		requests = append(requests, main)
	case !alerted:
		main.Title = "Leave now for " + name
		main.FireAt = now
		requests = append(requests, main)
	}

	for _, off := range m.offsets {
		fireAt := leave.Add(-off)
		if !fireAt.After(now) {
			continue
		}
		requests = append(requests, Request{
			ID:        ReminderID(t.ID, off),
			TripID:    t.ID,
			UserID:    t.UserID,
			Kind:      KindReminder,
			Title:     fmt.Sprintf("Leave in %d min for %s", int(off/time.Minute), name),
			Body:      rec.Prediction.Explanation,
			FireAt:    fireAt,
			LeaveTime: leave,
		})
	}

	added := make([]string, 0, len(requests))
	for _, req := range requests {
		if err := m.center.Add(ctx, req); err != nil {
			if rmErr := m.center.Remove(ctx, added); rmErr != nil {
				m.logger.Warn().Err(rmErr).Str("trip_id", t.ID).Msg("failed to roll back partial schedule")
			}
			return ScheduledSet{}, fmt.Errorf("%w: adding %s: %w", faults.ErrSchedulingFailure, req.ID, err)
		}
		added = append(added, req.ID)
	}

	set := ScheduledSet{
		TripID:      t.ID,
		UserID:      t.UserID,
		IDs:         added,
		LeaveTime:   leave,
		ScheduledAt: now,
	}
	m.sets.Set(t.ID, set)
	if leave.After(now) {
		m.delivered.Delete(t.ID)
	}

	m.logger.Debug().
		Str("trip_id", t.ID).
		Time("leave_time", leave).
		Int("notifications", len(added)).
		Msg("scheduled notifications")

	return set, nil
}

// Cancel removes every notification of a trip and forgets its deliveries.
// It is a no-op when nothing is scheduled.
func (m *Manager) Cancel(ctx context.Context, tripID string) error {
	if err := m.remove(ctx, tripID); err != nil {
		return err
	}
	m.delivered.Delete(tripID)
	return nil
}

// Delivered records that req reached the user, dropping it from its trip's
// live set. Entries of an older schedule are ignored.
func (m *Manager) Delivered(req Request) {
	if !Managed(req.ID) || req.TripID == "" {
		return
	}
	if req.Kind == KindLeave {
		m.delivered.Set(req.TripID, req.LeaveTime)
	}
	m.sets.Update(req.TripID, func(cur ScheduledSet, present bool) (ScheduledSet, bool) {
		if !present || !cur.LeaveTime.Equal(req.LeaveTime) {
			return cur, present
		}
		cur.IDs = slices.DeleteFunc(slices.Clone(cur.IDs), func(id string) bool { return id == req.ID })
		return cur, true
	})
}

func (m *Manager) remove(ctx context.Context, tripID string) error {
	ids := IDsFor(tripID, m.offsets)
	if set, ok := m.sets.Get(tripID); ok {
		for _, id := range set.IDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	if err := m.center.Remove(ctx, ids); err != nil {
		return fmt.Errorf("%w: cancelling trip %s: %w", faults.ErrSchedulingFailure, tripID, err)
	}
	m.sets.Delete(tripID)
	return nil
}

// CancelUser removes every notification belonging to a user.
func (m *Manager) CancelUser(ctx context.Context, userID string) error {
	pending, err := m.center.Pending(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing notifications: %w", faults.ErrSchedulingFailure, err)
	}

	var ids []string
	for _, req := range pending {
		if Managed(req.ID) && req.UserID == userID {
			ids = append(ids, req.ID)
		}
	}
	m.sets.Range(func(_ string, set ScheduledSet) bool {
		if set.UserID == userID {
			ids = append(ids, set.IDs...)
		}
		return true
	})
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if err := m.center.Remove(ctx, ids); err != nil {
		return fmt.Errorf("%w: cancelling user %s: %w", faults.ErrSchedulingFailure, userID, err)
	}
	m.sets.DeleteIf(func(_ string, set ScheduledSet) bool { return set.UserID == userID })
	return nil
}

// CancelAll removes every managed notification from the center.
func (m *Manager) CancelAll(ctx context.Context) error {
	pending, err := m.center.Pending(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing notifications: %w", faults.ErrSchedulingFailure, err)
	}

	var ids []string
	for _, req := range pending {
		if Managed(req.ID) {
			ids = append(ids, req.ID)
		}
	}

	if err := m.center.Remove(ctx, ids); err != nil {
		return fmt.Errorf("%w: cancelling all: %w", faults.ErrSchedulingFailure, err)
	}
	m.sets.Clear()
	return nil
}

// Scheduled returns the live set of a trip.
func (m *Manager) Scheduled(tripID string) (ScheduledSet, bool) {
	set, ok := m.sets.Get(tripID)
	if !ok {
		return ScheduledSet{}, false
	}
	set.IDs = slices.Clone(set.IDs)
	return set, true
}

func destinationName(t *trip.Trip) string {
	switch {
	case t.Label != "":
		return t.Label
	case t.Destination.DisplayName != "":
		return t.Destination.DisplayName
	case t.Destination.Address != "":
		return t.Destination.Address
	default:
		return "your trip"
	}
}
