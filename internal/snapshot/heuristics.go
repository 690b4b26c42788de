package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/weather"
)

const (
	// FallbackSpeedMPS is the average speed assumed when no route is available.
	FallbackSpeedMPS = 13.4

	// FallbackCongestionPenalty is the flat slowdown applied to fallback routes.
	FallbackCongestionPenalty = 0.2
)

// HeuristicDelaySeconds returns the additive weather delay for w.
func HeuristicDelaySeconds(w weather.WeatherSnapshot) float64 {
	var delay float64

	switch {
	case w.PrecipitationProbability > 60:
		delay += 300
	case w.PrecipitationProbability > 30:
		delay += 180
	}

	switch {
	case w.VisibilityKm < 5:
		delay += 240
	case w.VisibilityKm < 10:
		delay += 120
	}

	if w.WindSpeed > 15 {
		delay += 60
	}

	return delay
}

// fusedConfidence is the confidence of a freshly fetched snapshot.
func fusedConfidence(routeFallback, weatherFallback bool) float64 {
	c := BaseConfidence
	if routeFallback {
		c -= FallbackPenalty
	}
	if weatherFallback {
		c -= FallbackPenalty
	}
	return c
}

// decayedConfidence lowers a cached confidence linearly with age so that it
// reaches CacheConfidenceFloor at ttl. Values already below the floor are kept.
func decayedConfidence(stored float64, age, ttl time.Duration) float64 {
	if stored <= CacheConfidenceFloor || ttl <= 0 || age <= 0 {
		return stored
	}
	frac := float64(age) / float64(ttl)
	if frac > 1 {
		frac = 1
	}
	return stored - (stored-CacheConfidenceFloor)*frac
}

// isPeakHour reports whether hour falls in the morning (7-9) or evening (16-19) peak.
func isPeakHour(hour int) bool {
	return (hour >= 7 && hour <= 9) || (hour >= 16 && hour <= 19)
}

// fallbackRoute estimates a route from the great-circle distance.
func fallbackRoute(origin, destination geo.Coordinate, arrival time.Time, loc *time.Location, now time.Time) routing.RouteSnapshot {
	distance := geo.DistanceMeters(origin, destination)
	baseline := distance / FallbackSpeedMPS

	congestion := routing.CongestionModerate
	if isPeakHour(arrival.In(loc).Hour()) {
		congestion = routing.CongestionHeavy
	}

	return routing.RouteSnapshot{
		DistanceMeters:          distance,
		BaselineDurationSeconds: baseline,
		TrafficDurationSeconds:  baseline * (1 + FallbackCongestionPenalty),
		Congestion:              congestion,
		CapturedAt:              now,
	}
}

// fallbackWeather is the default clear-weather snapshot.
func fallbackWeather(arrival, now time.Time) weather.WeatherSnapshot {
	return weather.WeatherSnapshot{
		TemperatureC:             21,
		FeelsLikeC:               21,
		Condition:                weather.ConditionClear,
		PrecipitationProbability: 10,
		VisibilityKm:             10,
		ValidAt:                  arrival,
		CapturedAt:               now,
	}
}

// explain summarizes traffic and weather in one line.
func explain(s TrafficWeatherSnapshot) string {
	parts := []string{s.Route.Congestion.Descriptor()}

	w := s.Weather
	switch {
	case w.PrecipitationProbability > 60:
		parts = append(parts, fmt.Sprintf("rain likely (%.0f%%)", w.PrecipitationProbability))
	case w.PrecipitationProbability > 30:
		parts = append(parts, fmt.Sprintf("chance of rain (%.0f%%)", w.PrecipitationProbability))
	}
	if w.VisibilityKm < 5 {
		parts = append(parts, "low visibility")
	}
	if w.WindSpeed > 15 {
		parts = append(parts, "strong wind")
	}
	if s.HeuristicDelaySeconds == 0 {
		parts = append(parts, "no weather delay")
	}

	var estimated []string
	if s.RouteFallback {
		estimated = append(estimated, "traffic")
	}
	if s.WeatherFallback {
		estimated = append(estimated, "weather")
	}

	text := strings.Join(parts, ", ")
	if len(estimated) > 0 {
		text += " (estimated " + strings.Join(estimated, " and ") + ")"
	}
	return text
}
