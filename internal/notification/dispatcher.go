package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers a due notification to the user's devices.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Center Center
	Sender Sender

	// Interval between polls of the center.
	// Default: 15 seconds
	Interval time.Duration

	// Paused, when it returns true, holds due notifications in the center.
	Paused func(ctx context.Context) bool

	// OnDelivered, if set, is called for each notification sent and acked.
	OnDelivered func(req Request)

	Logger zerolog.Logger
	Now    func() time.Time
}

// Dispatcher sends due notifications and removes them from the center.
type Dispatcher struct {
	center   Center
	sender   Sender
	interval time.Duration
	paused   func(ctx context.Context) bool
	onSent   func(req Request)
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Paused == nil {
		cfg.Paused = func(context.Context) bool { return false }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		center:   cfg.Center,
		sender:   cfg.Sender,
		interval: cfg.Interval,
		paused:   cfg.Paused,
		onSent:   cfg.OnDelivered,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DispatchDue(ctx); err != nil {
				d.logger.Error().Err(err).Msg("dispatch failed")
			}
		}
	}
}

// DispatchDue sends every notification whose fire time has passed. A send
// failure leaves the notification in place for the next poll. An entry
// replaced while it was being sent stays in the center.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	if d.paused(ctx) {
		d.logger.Debug().Msg("notification sending paused")
		return 0, nil
	}

	pending, err := d.center.Pending(ctx)
	if err != nil {
		return 0, err
	}

	now := d.now()
	sent := 0
	for _, req := range pending {
		if req.FireAt.After(now) {
			break
		}
		if err := d.sender.Send(ctx, req); err != nil {
			d.logger.Warn().Err(err).Str("notification_id", req.ID).Msg("failed to send notification")
			continue
		}
		sent++

		acked, err := d.center.Ack(ctx, req)
		if err != nil {
			return sent, err
		}
		if !acked {
			d.logger.Debug().Str("notification_id", req.ID).Msg("notification replaced while sending")
			continue
		}
		if d.onSent != nil {
			d.onSent(req)
		}
	}

	if sent > 0 {
		d.logger.Info().Int("sent", sent).Msg("dispatched notifications")
	}
	return sent, nil
}
