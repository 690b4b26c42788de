package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/events"
)

// EventHandler feeds bus events into a Coordinator.
type EventHandler struct {
	c      *Coordinator
	logger zerolog.Logger
}

// NewEventHandler creates an events.Handler backed by c.
func NewEventHandler(c *Coordinator, logger zerolog.Logger) *EventHandler {
	return &EventHandler{c: c, logger: logger}
}

// TripChanged implements events.Handler.
func (h *EventHandler) TripChanged(_ context.Context, ev events.TripEvent) {
	h.logErr(h.c.TripEdited(ev.TripID), "trip_edited", ev.TripID)
}

// TripDeleted implements events.Handler.
func (h *EventHandler) TripDeleted(_ context.Context, ev events.TripEvent) {
	h.logErr(h.c.TripDeleted(ev.TripID), "trip_deleted", ev.TripID)
}

// RefreshRequested implements events.Handler.
func (h *EventHandler) RefreshRequested(_ context.Context, ev events.TripEvent) {
	err := h.c.ManualRefresh(ev.TripID)
	if errors.Is(err, ErrRefreshThrottled) {
		h.logger.Info().Str("trip_id", ev.TripID).Msg("manual refresh throttled")
		return
	}
	h.logErr(err, "manual_refresh", ev.TripID)
}

// LocationChanged implements events.Handler.
func (h *EventHandler) LocationChanged(ctx context.Context, ev events.LocationEvent) {
	if err := ev.Location.Validate(); err != nil {
		h.logger.Warn().Err(err).Str("user_id", ev.UserID).Msg("dropping invalid location")
		return
	}
	n, err := h.c.LocationChanged(ctx, ev.UserID, ev.Location)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", ev.UserID).Msg("location change failed")
		return
	}
	h.logger.Debug().Str("user_id", ev.UserID).Int("trips", n).Msg("location change queued")
}

// PreferencesChanged implements events.Handler.
func (h *EventHandler) PreferencesChanged(ctx context.Context, ev events.PreferenceEvent) {
	if err := h.c.NotificationsToggled(ctx, ev.UserID, ev.LeaveNotificationsEnabled); err != nil {
		h.logger.Error().Err(err).Str("user_id", ev.UserID).Msg("preference change failed")
	}
}

func (h *EventHandler) logErr(err error, trigger, tripID string) {
	if err != nil {
		h.logger.Error().Err(err).Str("trigger", trigger).Str("trip_id", tripID).Msg("failed to queue pass")
	}
}

var _ events.Handler = (*EventHandler)(nil)
