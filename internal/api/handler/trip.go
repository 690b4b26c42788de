package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/trip"
)

// Pagination bounds for trip listing.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TripService is the trip operations the API needs.
type TripService interface {
	List(ctx context.Context, userID string, limit int, cursor string) (*models.PagedTrips, error)
	Get(ctx context.Context, userID, tripID string) (*trip.Trip, error)
	Create(ctx context.Context, userID string, input *models.TripCreateRequest) (*trip.Trip, error)
	Update(ctx context.Context, userID, tripID string, input *models.TripUpdateRequest) (*trip.Trip, error)
	Delete(ctx context.Context, userID, tripID string) error
	RecordRoute(ctx context.Context, tripID string, route routing.RouteSnapshot) error
}

// TripHandler handles trip endpoints.
type TripHandler struct {
	trips  TripService
	logger zerolog.Logger
	now    func() time.Time
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(trips TripService, logger zerolog.Logger) *TripHandler {
	return &TripHandler{trips: trips, logger: logger, now: time.Now}
}

// ListTrips handles GET /v1/trips.
func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{{
				Field:   "limit",
				Message: "must be between 1 and 100",
				Code:    "out_of_range",
			}})
			return
		}
		limit = n
	}

	page, err := h.trips.List(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

// CreateTrip handles POST /v1/trips.
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.TripCreateRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	t, err := h.trips.Create(r.Context(), userID, &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/trips/"+t.ID, trip.ToAPITrip(t, h.now()))
}

// GetTrip handles GET /v1/trips/{tripId}.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	t, err := h.trips.Get(r.Context(), userID, chi.URLParam(r, "tripId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, trip.ToAPITrip(t, h.now()))
}

// UpdateTrip handles PUT /v1/trips/{tripId}.
func (h *TripHandler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.TripUpdateRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	t, err := h.trips.Update(r.Context(), userID, chi.URLParam(r, "tripId"), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, trip.ToAPITrip(t, h.now()))
}

// DeleteTrip handles DELETE /v1/trips/{tripId}.
func (h *TripHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.trips.Delete(r.Context(), userID, chi.URLParam(r, "tripId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *TripHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeTripError(w, r, h.logger, err)
}

func writeTripError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var validation *trip.ValidationError
	switch {
	case errors.As(err, &validation):
		response.BadRequest(w, r, "invalid trip", validation.Errors)
	case errors.Is(err, trip.ErrTripNotFound):
		response.NotFound(w, r, "trip not found")
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("trip request failed")
		response.InternalError(w, r, "failed to process trip request")
	}
}
