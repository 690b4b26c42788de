// Package snapshot fuses route and weather data for one trip into a single
// confidence-scored view, with caching and static fallbacks so that a usable
// snapshot is always returned.
package snapshot

import (
	"time"

	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/weather"
)

const (
	// DefaultCacheTTL is how long a fused snapshot is served without refetching.
	DefaultCacheTTL = 90 * time.Second

	// DefaultAdapterTimeout bounds each route or weather call.
	DefaultAdapterTimeout = 10 * time.Second

	// ArrivalBucket is the granularity arrival times are rounded to for caching.
	ArrivalBucket = 5 * time.Minute

	// CoordinatePrecision is the number of decimals kept in cache keys (about 110 m).
	CoordinatePrecision = 3

	// BaseConfidence applies when both sources answered live.
	BaseConfidence = 0.9

	// FallbackPenalty is subtracted per source that used a fallback.
	FallbackPenalty = 0.2

	// CacheConfidenceFloor is the confidence a cached entry decays to at the TTL boundary.
	CacheConfidenceFloor = 0.4

	// forecastWindow is how far the nearest hourly entry may be from arrival to be used.
	forecastWindow = 90 * time.Minute
)

// TrafficWeatherSnapshot is the fused view of route and weather conditions
// for one origin, destination and arrival time.
type TrafficWeatherSnapshot struct {
	Route                 routing.RouteSnapshot   `json:"route"`
	Weather               weather.WeatherSnapshot `json:"weather"`
	HeuristicDelaySeconds float64                 `json:"heuristicDelaySeconds"`
	Confidence            float64                 `json:"confidence"`
	Explanation           string                  `json:"explanation"`
	GeneratedAt           time.Time               `json:"generatedAt"`
	RouteFallback         bool                    `json:"routeFallback"`
	WeatherFallback       bool                    `json:"weatherFallback"`
}

// UsedFallback reports whether any source was synthesized.
func (s TrafficWeatherSnapshot) UsedFallback() bool {
	return s.RouteFallback || s.WeatherFallback
}

// CacheStats returns cache statistics.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}
