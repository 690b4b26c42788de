package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/weather"
	"github.com/commutetimely/leavetime/pkg/fn"
	"github.com/commutetimely/leavetime/pkg/shardmap"
)

const (
	component    = "snapshot"
	cacheName    = "snapshot"
	opRoute      = "route"
	opCurrent    = "current"
	opHourly     = "hourly"
	cleanupEvery = 5 * time.Minute
)

var errNoProvider = errors.New("provider not configured")

// Metrics receives adapter and cache observations.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, time.Duration, error) {}
func (nopMetrics) RecordCacheHit(string) {}
func (nopMetrics) RecordCacheMiss(string) {}

// Config configures the snapshot service.
type Config struct {
	RouteProvider   routing.Provider
	WeatherProvider weather.Provider
	Reporter        faults.Reporter
	Metrics         Metrics
	Logger          zerolog.Logger

	// CacheTTL is the freshness window of a fused snapshot. Default 90s.
	CacheTTL time.Duration

	// AdapterTimeout bounds each provider call. Default 10s.
	AdapterTimeout time.Duration

	// Location is the zone used to decide peak hours for fallback routes.
	// Default time.Local.
	Location *time.Location

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

type cachedSnapshot struct {
	snapshot TrafficWeatherSnapshot
	storedAt time.Time
}

// Service produces fused traffic and weather snapshots.
type Service struct {
	routes   routing.Provider
	weather  weather.Provider
	reporter faults.Reporter
	metrics  Metrics
	logger   zerolog.Logger
	ttl      time.Duration
	timeout  time.Duration
	loc      *time.Location
	now      func() time.Time

	cache       *shardmap.Map[cachedSnapshot]
	group       singleflight.Group
	hits        atomic.Int64
	misses      atomic.Int64
	lastCleanup atomic.Int64
}

// NewService creates a snapshot service. Either provider may be nil, in which
// case that source always uses its fallback.
func NewService(cfg Config) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.AdapterTimeout == 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	s := &Service{
		routes:   cfg.RouteProvider,
		weather:  cfg.WeatherProvider,
		reporter: cfg.Reporter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		ttl:      cfg.CacheTTL,
		timeout:  cfg.AdapterTimeout,
		loc:      cfg.Location,
		now:      cfg.Now,
		cache:    shardmap.New[cachedSnapshot](shardmap.DefaultShards),
	}
	s.lastCleanup.Store(cfg.Now().UnixNano())
	return s
}

// Snapshot returns the fused view for a trip. It never fails: sources that
// cannot be reached are replaced by fallbacks and the confidence is lowered.
func (s *Service) Snapshot(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time) TrafficWeatherSnapshot {
	s.cleanupIfNeeded()

	key := CacheKey(origin, destination, arrival)
	if snap, ok := s.lookup(key); ok {
		s.hits.Add(1)
		s.metrics.RecordCacheHit(cacheName)
		return snap
	}
	s.misses.Add(1)
	s.metrics.RecordCacheMiss(cacheName)

	// Concurrent misses for the same key share one fetch. The fetch is detached
	// from the first caller so a cancelled caller does not poison the others.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if snap, ok := s.lookup(key); ok {
			return snap, nil
		}
		snap := s.fetch(fetchCtx, origin, destination, arrival)
		s.cache.Set(key, cachedSnapshot{snapshot: snap, storedAt: s.now()})
		return snap, nil
	})

	select {
	case res := <-ch:
		return res.Val.(TrafficWeatherSnapshot)
	case <-ctx.Done():
		s.logger.Debug().Err(ctx.Err()).Str("key", key).Msg("snapshot wait abandoned, using fallbacks")
		return s.fuse(
			fallbackRoute(origin, destination, arrival, s.loc, s.now()),
			fallbackWeather(arrival, s.now()),
			true, true,
		)
	}
}

// CacheKey returns the cache key for a request: coordinates quantized to
// CoordinatePrecision decimals and arrival rounded to ArrivalBucket.
func CacheKey(origin, destination geo.Coordinate, arrival time.Time) string {
	o := origin.Quantize(CoordinatePrecision)
	d := destination.Quantize(CoordinatePrecision)
	return fmt.Sprintf("%.3f,%.3f|%.3f,%.3f|%d", o.Lat, o.Lon, d.Lat, d.Lon, arrival.Round(ArrivalBucket).Unix())
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Entries: s.cache.Len(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}
}

// InvalidateCache drops all cached snapshots.
func (s *Service) InvalidateCache() {
	s.cache.Clear()
}

func (s *Service) lookup(key string) (TrafficWeatherSnapshot, bool) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return TrafficWeatherSnapshot{}, false
	}
	age := s.now().Sub(entry.storedAt)
	if age > s.ttl {
		return TrafficWeatherSnapshot{}, false
	}
	snap := entry.snapshot
	snap.Confidence = decayedConfidence(snap.Confidence, age, s.ttl)
	return snap, true
}

func (s *Service) fetch(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time) TrafficWeatherSnapshot {
	routeRes, weatherRes := fn.Join2(
		func() fn.Result[routing.RouteSnapshot] { return s.fetchRoute(ctx, origin, destination) },
		func() fn.Result[weather.WeatherSnapshot] {
			return s.fetchWeather(ctx, geo.Midpoint(origin, destination), arrival)
		},
	)

	routeFallback := routeRes.IsErr()
	route := routeRes.UnwrapOrElse(func(err error) routing.RouteSnapshot {
		s.logger.Warn().Err(err).Str("origin", origin.String()).Str("destination", destination.String()).
			Msg("route unavailable, using distance estimate")
		return fallbackRoute(origin, destination, arrival, s.loc, s.now())
	})

	weatherFallback := weatherRes.IsErr()
	w := weatherRes.UnwrapOrElse(func(err error) weather.WeatherSnapshot {
		s.logger.Warn().Err(err).Msg("weather unavailable, using clear-weather default")
		return fallbackWeather(arrival, s.now())
	})

	return s.fuse(s.sanitizeRoute(ctx, route), s.sanitizeWeather(ctx, w), routeFallback, weatherFallback)
}

func (s *Service) fuse(route routing.RouteSnapshot, w weather.WeatherSnapshot, routeFallback, weatherFallback bool) TrafficWeatherSnapshot {
	generatedAt := route.CapturedAt
	if w.CapturedAt.After(generatedAt) {
		generatedAt = w.CapturedAt
	}

	snap := TrafficWeatherSnapshot{
		Route:                 route,
		Weather:               w,
		HeuristicDelaySeconds: HeuristicDelaySeconds(w),
		Confidence:            fusedConfidence(routeFallback, weatherFallback),
		GeneratedAt:           generatedAt,
		RouteFallback:         routeFallback,
		WeatherFallback:       weatherFallback,
	}
	snap.Explanation = explain(snap)
	return snap
}

func (s *Service) fetchRoute(ctx context.Context, origin, destination geo.Coordinate) fn.Result[routing.RouteSnapshot] {
	if s.routes == nil {
		return fn.Err[routing.RouteSnapshot](errNoProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	route, err := s.routes.Route(ctx, origin, destination)
	s.metrics.RecordRequest(s.routes.Name(), opRoute, time.Since(start), err)
	return fn.FromPair(route, err)
}

// fetchWeather prefers the hourly entry nearest arrival and falls back to
// current conditions.
func (s *Service) fetchWeather(ctx context.Context, at geo.Coordinate, arrival time.Time) fn.Result[weather.WeatherSnapshot] {
	if s.weather == nil {
		return fn.Err[weather.WeatherSnapshot](errNoProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	hourly, err := s.weather.Hourly(ctx, at)
	s.metrics.RecordRequest(s.weather.Name(), opHourly, time.Since(start), err)
	if err == nil {
		if entry, ok := weather.Nearest(hourly, arrival); ok && absDuration(entry.ValidAt.Sub(arrival)) <= forecastWindow {
			return fn.Ok(entry)
		}
	} else {
		s.logger.Debug().Err(err).Msg("hourly forecast unavailable, trying current conditions")
	}

	start = time.Now()
	current, err := s.weather.Current(ctx, at)
	s.metrics.RecordRequest(s.weather.Name(), opCurrent, time.Since(start), err)
	return fn.FromPair(current, err)
}

func (s *Service) sanitizeRoute(ctx context.Context, r routing.RouteSnapshot) routing.RouteSnapshot {
	r.DistanceMeters = faults.ClampNonNegative(ctx, s.reporter, component, "route.distanceMeters", r.DistanceMeters)
	r.BaselineDurationSeconds = faults.ClampNonNegative(ctx, s.reporter, component, "route.baselineDurationSeconds", r.BaselineDurationSeconds)
	r.TrafficDurationSeconds = faults.ClampNonNegative(ctx, s.reporter, component, "route.trafficDurationSeconds", r.TrafficDurationSeconds)
	r.Congestion = r.Congestion.Clamp()
	return r
}

func (s *Service) sanitizeWeather(ctx context.Context, w weather.WeatherSnapshot) weather.WeatherSnapshot {
	w.PrecipitationProbability = faults.ClampRange(ctx, s.reporter, component, "weather.precipitationProbability", w.PrecipitationProbability, 0, 100)
	w.VisibilityKm = faults.ClampNonNegative(ctx, s.reporter, component, "weather.visibilityKm", w.VisibilityKm)
	w.WindSpeed = faults.ClampNonNegative(ctx, s.reporter, component, "weather.windSpeed", w.WindSpeed)
	return w
}

// cleanupIfNeeded removes expired entries at most once per cleanupEvery.
func (s *Service) cleanupIfNeeded() {
	now := s.now()
	last := s.lastCleanup.Load()
	if now.Sub(time.Unix(0, last)) < cleanupEvery {
		return
	}
	if !s.lastCleanup.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	removed := s.cache.DeleteIf(func(_ string, e cachedSnapshot) bool {
		return now.Sub(e.storedAt) > s.ttl
	})
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("expired snapshots removed")
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
