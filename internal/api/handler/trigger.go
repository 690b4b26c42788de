package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/geo"
)

const (
	disabledRetryAfter = 5 * time.Minute
	publishRetryAfter  = 30 * time.Second
)

// TriggerPublisher forwards scheduling triggers to the worker.
type TriggerPublisher interface {
	RefreshRequested(ctx context.Context, tripID, userID string) error
	LocationChanged(ctx context.Context, userID string, at geo.Coordinate) error
}

// TriggerHandler accepts requests that make the worker recompute trips.
type TriggerHandler struct {
	trips           TripService
	publisher       TriggerPublisher
	refreshDisabled func(ctx context.Context) bool
	logger          zerolog.Logger
	now             func() time.Time
}

// TriggerHandlerConfig configures a TriggerHandler.
type TriggerHandlerConfig struct {
	Trips     TripService
	Publisher TriggerPublisher

	// RefreshDisabled is an optional kill switch for manual refresh.
	RefreshDisabled func(ctx context.Context) bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(cfg TriggerHandlerConfig) *TriggerHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TriggerHandler{
		trips:           cfg.Trips,
		publisher:       cfg.Publisher,
		refreshDisabled: cfg.RefreshDisabled,
		logger:          cfg.Logger,
		now:             cfg.Now,
	}
}

// RefreshTrip handles POST /v1/trips/{tripId}/refresh.
func (h *TriggerHandler) RefreshTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.refreshDisabled != nil && h.refreshDisabled(ctx) {
		response.ServiceUnavailable(w, r, "manual refresh is temporarily disabled", disabledRetryAfter)
		return
	}

	// Ownership check; the worker trusts the event.
	t, err := h.trips.Get(ctx, userID, chi.URLParam(r, "tripId"))
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}

	if err := h.publisher.RefreshRequested(ctx, t.ID, userID); err != nil {
		h.logger.Error().Err(err).Str("trip_id", t.ID).Msg("failed to publish refresh")
		response.ServiceUnavailable(w, r, "refresh could not be queued", publishRetryAfter)
		return
	}

	response.Accepted(w, r, "/v1/trips/"+t.ID+"/recommendation", models.RefreshAccepted{
		TripID:      t.ID,
		RequestedAt: models.Timestamp(h.now()),
	})
}

// UpdateLocation handles POST /v1/location. Clients report only significant
// moves; the worker recomputes the user's trips from the new position.
func (h *TriggerHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.LocationUpdate
	if !decodeJSON(w, r, &input) {
		return
	}

	at := geo.Coordinate{Lat: input.Point.Lat, Lon: input.Point.Lon}
	if err := at.Validate(); err != nil {
		response.BadRequest(w, r, "invalid location", []models.FieldError{{
			Field:   "point",
			Message: err.Error(),
			Code:    "out_of_range",
		}})
		return
	}

	if err := h.publisher.LocationChanged(r.Context(), userID, at); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to publish location change")
		response.ServiceUnavailable(w, r, "location update could not be queued", publishRetryAfter)
		return
	}

	response.Accepted(w, r, "", nil)
}
