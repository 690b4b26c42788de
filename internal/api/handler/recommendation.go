package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/preference"
)

// Recommender produces leave-time recommendations.
type Recommender interface {
	Recommend(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time, userBufferMinutes int) prediction.Recommendation
}

// PreferenceReader returns a user's effective preferences.
type PreferenceReader interface {
	Preferences(ctx context.Context, userID string) (*preference.Preferences, error)
}

// RecommendationHandler runs the prediction pipeline on demand.
type RecommendationHandler struct {
	trips       TripService
	prefs       PreferenceReader
	recommender Recommender
	logger      zerolog.Logger
	now         func() time.Time
}

// RecommendationHandlerConfig configures a RecommendationHandler.
type RecommendationHandlerConfig struct {
	Trips       TripService
	Preferences PreferenceReader
	Recommender Recommender
	Logger      zerolog.Logger
	Now         func() time.Time
}

// NewRecommendationHandler creates a new RecommendationHandler.
func NewRecommendationHandler(cfg RecommendationHandlerConfig) *RecommendationHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RecommendationHandler{
		trips:       cfg.Trips,
		prefs:       cfg.Preferences,
		recommender: cfg.Recommender,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// GetRecommendation handles GET /v1/trips/{tripId}/recommendation.
// Trips without a fixed origin need the caller's position in the lat and
// lon query parameters; when given they also override a fixed origin.
func (h *RecommendationHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	t, err := h.trips.Get(ctx, userID, chi.URLParam(r, "tripId"))
	if err != nil {
		writeTripError(w, r, h.logger, err)
		return
	}

	origin, fieldErrs := queryOrigin(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid origin", fieldErrs)
		return
	}
	if origin == nil {
		if t.Origin == nil {
			response.BadRequest(w, r, "trip has no origin; pass lat and lon", []models.FieldError{{
				Field:   "lat",
				Message: "required when the trip has no fixed origin",
				Code:    "required",
			}})
			return
		}
		origin = &t.Origin.Coordinate
	}

	now := h.now()
	arrival := t.NextArrival(now)
	if !arrival.After(now) {
		response.Conflict(w, r, "trip arrival time has passed")
		return
	}

	prefs, err := h.prefs.Preferences(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load preferences")
		response.InternalError(w, r, "failed to load preferences")
		return
	}
	buffer := prefs.DefaultBufferMinutes
	if t.BufferMinutes != nil {
		buffer = *t.BufferMinutes
	}

	rec := h.recommender.Recommend(ctx, *origin, t.Destination.Coordinate, arrival, buffer)

	if !rec.Snapshot.RouteFallback {
		if err := h.trips.RecordRoute(ctx, t.ID, rec.Snapshot.Route); err != nil {
			h.logger.Warn().Err(err).Str("trip_id", t.ID).Msg("failed to record route")
		}
	}

	response.JSON(w, r, http.StatusOK, ToAPIRecommendation(t.ID, arrival, rec))
}

// queryOrigin parses the optional lat/lon query parameters.
func queryOrigin(r *http.Request) (*geo.Coordinate, []models.FieldError) {
	q := r.URL.Query()
	rawLat, rawLon := q.Get("lat"), q.Get("lon")
	if rawLat == "" && rawLon == "" {
		return nil, nil
	}

	lat, latErr := strconv.ParseFloat(rawLat, 64)
	lon, lonErr := strconv.ParseFloat(rawLon, 64)
	var errs []models.FieldError
	if latErr != nil {
		errs = append(errs, models.FieldError{Field: "lat", Message: "must be a number", Code: "invalid"})
	}
	if lonErr != nil {
		errs = append(errs, models.FieldError{Field: "lon", Message: "must be a number", Code: "invalid"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	c := geo.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return nil, []models.FieldError{{Field: "lat", Message: err.Error(), Code: "out_of_range"}}
	}
	return &c, nil
}

// ToAPIRecommendation converts a recommendation to its API form.
func ToAPIRecommendation(tripID string, arrival time.Time, rec prediction.Recommendation) models.Recommendation {
	p := rec.Prediction
	alts := make([]models.AlternativeLeaveTime, 0, len(p.Alternatives))
	for _, a := range p.Alternatives {
		alts = append(alts, models.AlternativeLeaveTime{
			LeaveTime:          models.Timestamp(a.LeaveTime),
			ArrivalProbability: a.ArrivalProbability,
			Description:        a.Description,
		})
	}

	snap := rec.Snapshot
	return models.Recommendation{
		TripID:                tripID,
		ArrivalTime:           models.Timestamp(arrival),
		LeaveTime:             models.Timestamp(p.LeaveTime),
		Confidence:            p.Confidence,
		Explanation:           p.Explanation,
		Alternatives:          alts,
		BufferMinutes:         p.BufferMinutes,
		UserBufferMinutes:     rec.UserBufferMinutes,
		WeatherPenaltyMinutes: rec.WeatherPenaltyMinutes,
		Source:                string(p.Source),
		Conditions: models.Conditions{
			DistanceMeters:           snap.Route.DistanceMeters,
			TravelMinutes:            snap.Route.TrafficDurationSeconds / 60,
			Congestion:               snap.Route.Congestion.String(),
			WeatherCondition:         string(snap.Weather.Condition),
			TemperatureC:             snap.Weather.TemperatureC,
			PrecipitationProbability: snap.Weather.PrecipitationProbability,
			VisibilityKm:             snap.Weather.VisibilityKm,
			Estimated:                snap.UsedFallback(),
			GeneratedAt:              models.Timestamp(snap.GeneratedAt),
		},
		PredictedAt: models.Timestamp(p.PredictedAt),
	}
}
