package scoring

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingField is returned by Validate for absent required fields.
var ErrMissingField = errors.New("missing required field")

// Point is a coordinate on the wire.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteFeatures are the route inputs on the wire.
type RouteFeatures struct {
	Distance            float64 `json:"distance"`
	BaselineDuration    float64 `json:"baseline_duration"`
	CurrentTrafficDelay float64 `json:"current_traffic_delay"`
	IncidentCount       int     `json:"incident_count"`
	CongestionLevel     int     `json:"congestion_level"`
}

// WeatherFeatures are the weather inputs on the wire.
type WeatherFeatures struct {
	WeatherScore             float64 `json:"weather_score"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	Visibility               float64 `json:"visibility"`
	WeatherDelay             float64 `json:"weather_delay,omitempty"`
}

// PredictRequest is the body of POST /v1/predict.
type PredictRequest struct {
	Origin            *Point           `json:"origin"`
	Destination       *Point           `json:"destination"`
	ArrivalTime       *time.Time       `json:"arrival_time"`
	CurrentTime       *time.Time       `json:"current_time,omitempty"`
	RouteFeatures     *RouteFeatures   `json:"route_features"`
	WeatherFeatures   *WeatherFeatures `json:"weather_features"`
	UserBufferMinutes int              `json:"user_buffer_minutes,omitempty"`
}

// Validate checks that all required fields are present.
func (r *PredictRequest) Validate() error {
	switch {
	case r.Origin == nil:
		return fmt.Errorf("%w: origin", ErrMissingField)
	case r.Destination == nil:
		return fmt.Errorf("%w: destination", ErrMissingField)
	case r.ArrivalTime == nil:
		return fmt.Errorf("%w: arrival_time", ErrMissingField)
	case r.RouteFeatures == nil:
		return fmt.Errorf("%w: route_features", ErrMissingField)
	case r.WeatherFeatures == nil:
		return fmt.Errorf("%w: weather_features", ErrMissingField)
	}
	return nil
}

// Features converts the request to model inputs. now is used when
// current_time is absent.
func (r *PredictRequest) Features(now time.Time) Features {
	current := now
	if r.CurrentTime != nil {
		current = *r.CurrentTime
	}
	return Features{
		ArrivalTime:              *r.ArrivalTime,
		CurrentTime:              current,
		DistanceMeters:           r.RouteFeatures.Distance,
		BaselineDurationSeconds:  r.RouteFeatures.BaselineDuration,
		TrafficDelaySeconds:      r.RouteFeatures.CurrentTrafficDelay,
		IncidentCount:            r.RouteFeatures.IncidentCount,
		CongestionLevel:          r.RouteFeatures.CongestionLevel,
		WeatherScore:             r.WeatherFeatures.WeatherScore,
		PrecipitationProbability: r.WeatherFeatures.PrecipitationProbability,
		VisibilityKm:             r.WeatherFeatures.Visibility,
		UserBufferMinutes:        r.UserBufferMinutes,
		WeatherDelaySeconds:      r.WeatherFeatures.WeatherDelay,
	}
}

// AlternativeLeaveTime is an alternative on the wire.
type AlternativeLeaveTime struct {
	LeaveTime          time.Time `json:"leave_time"`
	ArrivalProbability float64   `json:"arrival_probability"`
	Description        string    `json:"description"`
}

// PredictResponse is the body returned by POST /v1/predict.
type PredictResponse struct {
	LeaveTime             time.Time              `json:"leave_time"`
	Confidence            float64                `json:"confidence"`
	Explanation           string                 `json:"explanation"`
	AlternativeLeaveTimes []AlternativeLeaveTime `json:"alternative_leave_times"`
	BufferMinutes         int                    `json:"buffer_minutes"`
	CalculatedAt          time.Time              `json:"calculated_at"`
}

// NewPredictResponse converts a model result to its wire form.
func NewPredictResponse(res Result) PredictResponse {
	alts := make([]AlternativeLeaveTime, 0, len(res.Alternatives))
	for _, a := range res.Alternatives {
		alts = append(alts, AlternativeLeaveTime{
			LeaveTime:          a.LeaveTime.UTC(),
			ArrivalProbability: a.ArrivalProbability,
			Description:        a.Description,
		})
	}
	return PredictResponse{
		LeaveTime:             res.LeaveTime.UTC(),
		Confidence:            res.Confidence,
		Explanation:           res.Explanation,
		AlternativeLeaveTimes: alts,
		BufferMinutes:         res.BufferMinutes,
		CalculatedAt:          res.CalculatedAt.UTC(),
	}
}
