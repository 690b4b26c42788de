// Package weather defines the point-weather adapter consumed by the snapshot
// fusion service.
package weather

import (
	"context"
	"errors"
	"time"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrNoDataForLocation   = errors.New("no weather data for location")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrMalformedResponse   = errors.New("malformed weather response")
)

// Provider fetches current and forecast conditions at a point.
type Provider interface {
	// Current returns the latest observation at the point.
	Current(ctx context.Context, at geo.Coordinate) (WeatherSnapshot, error)
	// Hourly returns hourly forecast entries ordered by time.
	Hourly(ctx context.Context, at geo.Coordinate) ([]WeatherSnapshot, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Condition represents the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "clear"
	ConditionPartlyCloudy Condition = "partlyCloudy"
	ConditionCloudy       Condition = "cloudy"
	ConditionDrizzle      Condition = "drizzle"
	ConditionRain         Condition = "rain"
	ConditionThunderstorm Condition = "thunderstorm"
	ConditionSnow         Condition = "snow"
	ConditionFog          Condition = "fog"
	ConditionUnknown      Condition = "unknown"
)

// IsPrecipitating reports whether the condition implies falling precipitation.
func (c Condition) IsPrecipitating() bool {
	switch c {
	case ConditionDrizzle, ConditionRain, ConditionThunderstorm, ConditionSnow:
		return true
	default:
		return false
	}
}

// WeatherSnapshot is the weather state at one point and time.
// PrecipitationProbability is a percentage in [0, 100]; WindSpeed is in m/s.
type WeatherSnapshot struct {
	TemperatureC             float64   `json:"temperatureC"`
	FeelsLikeC               float64   `json:"feelsLikeC"`
	Condition                Condition `json:"condition"`
	Description              string    `json:"description,omitempty"`
	PrecipitationProbability float64   `json:"precipitationProbability"`
	VisibilityKm             float64   `json:"visibilityKm"`
	WindSpeed                float64   `json:"windSpeed"`
	ValidAt                  time.Time `json:"validAt"`
	CapturedAt               time.Time `json:"capturedAt"`
}

// Score rates driving conditions from 0 (worst) to 100 (ideal).
func (w WeatherSnapshot) Score() float64 {
	score := 100.0

	switch w.Condition {
	case ConditionThunderstorm:
		score -= 45
	case ConditionSnow:
		score -= 40
	case ConditionFog:
		score -= 30
	case ConditionRain:
		score -= 25
	case ConditionDrizzle:
		score -= 10
	case ConditionCloudy:
		score -= 5
	}

	score -= w.PrecipitationProbability * 0.2

	switch {
	case w.VisibilityKm < 1:
		score -= 25
	case w.VisibilityKm < 5:
		score -= 15
	case w.VisibilityKm < 10:
		score -= 5
	}

	if w.WindSpeed > 15 {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	return score
}

// Nearest returns the entry whose ValidAt is closest to t.
func Nearest(entries []WeatherSnapshot, t time.Time) (WeatherSnapshot, bool) {
	if len(entries) == 0 {
		return WeatherSnapshot{}, false
	}
	best := entries[0]
	bestGap := absDuration(best.ValidAt.Sub(t))
	for _, e := range entries[1:] {
		if gap := absDuration(e.ValidAt.Sub(t)); gap < bestGap {
			best, bestGap = e, gap
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Error provides detailed error information from the weather provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports every weather error as an adapter failure.
func (e *Error) Is(target error) bool {
	return target == faults.ErrAdapterFailure
}
