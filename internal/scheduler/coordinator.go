package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/trip"
	"github.com/commutetimely/leavetime/pkg/shardmap"
)

// Config holds configuration for the coordinator.
type Config struct {
	Trips       TripSource
	Preferences PreferenceSource
	Recommender Recommender
	Notifier    Notifier

	// Hysteresis is the smallest leave-time shift that reschedules on an
	// unforced trigger.
	// Default: 120 seconds
	Hysteresis time.Duration

	// PassTimeout bounds a single pass.
	// Default: 30 seconds
	PassTimeout time.Duration

	// RefreshInterval and RefreshBurst shape the per-trip manual refresh
	// token bucket.
	// Default: one every 30 seconds, burst of 3
	RefreshInterval time.Duration
	RefreshBurst    int

	// OnOutcome, if set, is called after every pass.
	OnOutcome func(Outcome)

	// DisableMetrics skips otel instrument creation.
	DisableMetrics bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// intent is a pending request for a trip's mailbox. Pending intents
// coalesce: deletion wins, force is sticky and the newest origin is kept.
type intent struct {
	trigger Trigger
	force   bool
	deleted bool
	origin  *geo.Coordinate
}

func (in intent) merge(next intent) intent {
	if next.trigger > in.trigger {
		in.trigger = next.trigger
	}
	in.force = in.force || next.force
	in.deleted = in.deleted || next.deleted
	if next.origin != nil {
		in.origin = next.origin
	}
	return in
}

type mailbox struct {
	pending *intent
}

// Coordinator runs scheduling passes for trips.
type Coordinator struct {
	trips       TripSource
	prefs       PreferenceSource
	recommender Recommender
	notifier    Notifier

	hysteresis  time.Duration
	passTimeout time.Duration
	refreshRate rate.Limit
	burst       int
	onOutcome   func(Outcome)
	metrics     *passMetrics
	logger      zerolog.Logger
	now         func() time.Time

	// leaveTimes is the last leave time scheduled per trip.
	leaveTimes *shardmap.Map[time.Time]
	// locations is the last signaled position per user.
	locations *shardmap.Map[geo.Coordinate]
	limiters  *shardmap.Map[*rate.Limiter]

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	boxes  map[string]*mailbox
	idle   chan struct{}
	closed bool
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Hysteresis <= 0 {
		cfg.Hysteresis = 120 * time.Second
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 30 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.RefreshBurst <= 0 {
		cfg.RefreshBurst = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var metrics *passMetrics
	if !cfg.DisableMetrics {
		m, err := newPassMetrics()
		if err != nil {
			cfg.Logger.Warn().Err(err).Msg("scheduler metrics unavailable")
		} else {
			metrics = m
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		trips:       cfg.Trips,
		prefs:       cfg.Preferences,
		recommender: cfg.Recommender,
		notifier:    cfg.Notifier,
		hysteresis:  cfg.Hysteresis,
		passTimeout: cfg.PassTimeout,
		refreshRate: rate.Every(cfg.RefreshInterval),
		burst:       cfg.RefreshBurst,
		onOutcome:   cfg.OnOutcome,
		metrics:     metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		leaveTimes:  shardmap.New[time.Time](shardmap.DefaultShards),
		locations:   shardmap.New[geo.Coordinate](shardmap.DefaultShards),
		limiters:    shardmap.New[*rate.Limiter](shardmap.DefaultShards),
		ctx:         ctx,
		cancel:      cancel,
		boxes:       make(map[string]*mailbox),
	}
}

// TripEdited recomputes a created or edited trip immediately.
func (c *Coordinator) TripEdited(tripID string) error {
	return c.submit(tripID, intent{trigger: TriggerTripEdited, force: true})
}

// TripDeleted cancels a trip's notifications. If a pass is in flight the
// cancel runs right after it.
func (c *Coordinator) TripDeleted(tripID string) error {
	return c.submit(tripID, intent{trigger: TriggerTripDeleted, deleted: true})
}

// ManualRefresh recomputes a trip on user request, subject to the per-trip
// token bucket.
func (c *Coordinator) ManualRefresh(tripID string) error {
	var limiter *rate.Limiter
	c.limiters.Update(tripID, func(cur *rate.Limiter, present bool) (*rate.Limiter, bool) {
		if !present {
			cur = rate.NewLimiter(c.refreshRate, c.burst)
		}
		limiter = cur
		return cur, true
	})
	if !limiter.AllowN(c.now(), 1) {
		return ErrRefreshThrottled
	}
	return c.submit(tripID, intent{trigger: TriggerManualRefresh, force: true})
}

// LocationChanged records the user's new position and recomputes their
// active trips.
func (c *Coordinator) LocationChanged(ctx context.Context, userID string, at geo.Coordinate) (int, error) {
	c.locations.Set(userID, at)

	trips, err := c.trips.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing trips of %s: %w", userID, err)
	}

	origin := at
	for _, t := range trips {
		if err := c.submit(t.ID, intent{trigger: TriggerLocationChanged, origin: &origin}); err != nil {
			return 0, err
		}
	}
	return len(trips), nil
}

// PeriodicWake recomputes every active trip, and cancels trips that still
// have a recorded leave time but are no longer active.
func (c *Coordinator) PeriodicWake(ctx context.Context) (int, error) {
	trips, err := c.trips.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active trips: %w", err)
	}

	active := make(map[string]bool, len(trips))
	for _, t := range trips {
		active[t.ID] = true
		if err := c.submit(t.ID, intent{trigger: TriggerPeriodicWake}); err != nil {
			return 0, err
		}
	}

	for _, id := range c.leaveTimes.Keys() {
		if !active[id] {
			if err := c.submit(id, intent{trigger: TriggerPeriodicWake}); err != nil {
				return 0, err
			}
		}
	}
	return len(trips), nil
}

// NotificationsToggled reacts to the user's notification preference.
// Disabling cancels everything the user has scheduled. Either way the user's
// active trips get a pass, which reads the stored preference and cancels or
// reschedules accordingly.
func (c *Coordinator) NotificationsToggled(ctx context.Context, userID string, enabled bool) error {
	if !enabled {
		if err := c.notifier.CancelUser(ctx, userID); err != nil {
			return err
		}
	}

	trips, err := c.trips.ListActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing trips of %s: %w", userID, err)
	}
	for _, t := range trips {
		if err := c.submit(t.ID, intent{trigger: TriggerTripEdited, force: enabled}); err != nil {
			return err
		}
	}
	return nil
}

// LastLeaveTime returns the leave time last scheduled for a trip.
func (c *Coordinator) LastLeaveTime(tripID string) (time.Time, bool) {
	return c.leaveTimes.Get(tripID)
}

// Wait blocks until every mailbox is drained or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.boxes) == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting work, cancels in-flight passes and waits for the
// mailboxes to drain.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.Wait(ctx)
}

func (c *Coordinator) submit(tripID string, in intent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCoordinatorClosed
	}

	box, ok := c.boxes[tripID]
	if ok {
		if box.pending != nil {
			merged := box.pending.merge(in)
			box.pending = &merged
		} else {
			box.pending = &in
		}
		return nil
	}

	if len(c.boxes) == 0 {
		c.idle = make(chan struct{})
	}
	box = &mailbox{pending: &in}
	c.boxes[tripID] = box
	go c.drain(tripID, box)
	return nil
}

// drain runs passes for one trip until its mailbox is empty, then removes it.
func (c *Coordinator) drain(tripID string, box *mailbox) {
	for {
		c.mu.Lock()
		in := box.pending
		box.pending = nil
		if in == nil {
			delete(c.boxes, tripID)
			if len(c.boxes) == 0 {
				close(c.idle)
			}
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.run(tripID, *in)
	}
}

func (c *Coordinator) run(tripID string, in intent) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.ctx, c.passTimeout)
	defer cancel()

	out := func() (out Outcome) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().
					Str("trip_id", tripID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("scheduling pass panicked")
				out = Outcome{Result: ResultFailed, Err: fmt.Errorf("pass panicked: %v", r)}
			}
		}()
		return c.pass(ctx, tripID, in)
	}()
	out.TripID = tripID
	out.Trigger = in.trigger
	out.Duration = time.Since(start)

	event := c.logger.Debug()
	if out.Result == ResultFailed {
		event = c.logger.Error().Err(out.Err)
	}
	event.
		Str("trip_id", tripID).
		Str("trigger", in.trigger.String()).
		Str("result", string(out.Result)).
		Dur("duration", out.Duration).
		Msg("scheduling pass finished")

	c.metrics.record(out)
	if c.onOutcome != nil {
		c.onOutcome(out)
	}
}

func (c *Coordinator) pass(ctx context.Context, tripID string, in intent) Outcome {
	if in.deleted {
		return c.cancelTrip(ctx, tripID)
	}

	t, err := c.trips.Get(ctx, tripID)
	if errors.Is(err, trip.ErrTripNotFound) {
		return c.cancelTrip(ctx, tripID)
	}
	if err != nil {
		return Outcome{Result: ResultFailed, Err: fmt.Errorf("fetching trip: %w", err)}
	}
	if !t.Active {
		return c.cancelTrip(ctx, tripID)
	}

	prefs, err := c.prefs.Preferences(ctx, t.UserID)
	if err != nil {
		return Outcome{Result: ResultFailed, Err: fmt.Errorf("fetching preferences: %w", err)}
	}
	if !prefs.LeaveNotificationsEnabled {
		return c.cancelTrip(ctx, tripID)
	}

	origin, ok := c.resolveOrigin(t, in)
	if !ok {
		return Outcome{Result: ResultFailed, Err: ErrNoOrigin}
	}

	now := c.now()
	arrival := t.NextArrival(now)
	if !arrival.After(now) {
		return c.cancelTrip(ctx, tripID)
	}

	buffer := prefs.DefaultBufferMinutes
	if t.BufferMinutes != nil {
		buffer = *t.BufferMinutes
	}

	rec := c.recommender.Recommend(ctx, origin, t.Destination.Coordinate, arrival, buffer)
	leave := rec.Prediction.LeaveTime

	// A set withdrawn outside the coordinator (cancel_all) is rebuilt even
	// when the leave time has not moved.
	if prev, ok := c.leaveTimes.Get(tripID); ok && !in.force {
		_, live := c.notifier.Scheduled(tripID)
		if shift := leave.Sub(prev).Abs(); live && shift <= c.hysteresis {
			return Outcome{Result: ResultUnchanged, LeaveTime: prev}
		}
	}

	if _, err := c.notifier.Schedule(ctx, t, rec); err != nil {
		return Outcome{Result: ResultFailed, LeaveTime: leave, Err: err}
	}
	c.leaveTimes.Set(tripID, leave)
	return Outcome{Result: ResultScheduled, LeaveTime: leave}
}

func (c *Coordinator) cancelTrip(ctx context.Context, tripID string) Outcome {
	if err := c.notifier.Cancel(ctx, tripID); err != nil {
		return Outcome{Result: ResultFailed, Err: err}
	}
	c.leaveTimes.Delete(tripID)
	return Outcome{Result: ResultCancelled}
}

func (c *Coordinator) resolveOrigin(t *trip.Trip, in intent) (geo.Coordinate, bool) {
	if in.origin != nil {
		return *in.origin, true
	}
	if loc, ok := c.locations.Get(t.UserID); ok {
		return loc, true
	}
	if t.Origin != nil {
		return t.Origin.Coordinate, true
	}
	return geo.Coordinate{}, false
}
