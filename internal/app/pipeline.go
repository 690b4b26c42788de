package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/prediction/remote"
	"github.com/commutetimely/leavetime/internal/provider/resilience"
	"github.com/commutetimely/leavetime/internal/routing/mapbox"
	"github.com/commutetimely/leavetime/internal/snapshot"
	"github.com/commutetimely/leavetime/internal/telemetry"
	"github.com/commutetimely/leavetime/internal/weather/openweathermap"
)

// PipelineConfig configures NewPipeline.
type PipelineConfig struct {
	Providers ProviderConfig

	// RemoteDisabled is an optional kill switch for the remote model.
	RemoteDisabled func(ctx context.Context) bool

	Logger zerolog.Logger
}

// Pipeline is the assembled snapshot and prediction path.
type Pipeline struct {
	Registry    *resilience.Registry
	Snapshots   *snapshot.Service
	Recommender *prediction.Orchestrator
}

// NewPipeline wires the configured adapters behind the snapshot cache and the
// orchestrator. Every adapter registers with the returned registry.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	logger := cfg.Logger
	registry := resilience.NewRegistry()

	reporter, err := telemetry.NewViolationReporter(logger)
	if err != nil {
		return nil, fmt.Errorf("creating violation reporter: %w", err)
	}
	metrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}

	loc := time.Local
	if tz := cfg.Providers.TimeZone; tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("loading time zone %q: %w", tz, err)
		}
	}

	snapCfg := snapshot.Config{
		Reporter: reporter,
		Metrics:  metrics,
		Logger:   logger.With().Str("component", "snapshot").Logger(),
		CacheTTL: cfg.Providers.SnapshotCacheTTL,
		Location: loc,
	}
	if token := cfg.Providers.MapboxToken; token != "" {
		snapCfg.RouteProvider = mapbox.NewClient(mapbox.ClientConfig{
			AccessToken: token,
			Registry:    registry,
			Reporter:    reporter,
			Logger:      logger.With().Str("provider", mapbox.ProviderName).Logger(),
		})
	} else {
		logger.Warn().Msg("MAPBOX_ACCESS_TOKEN not set, using fallback routes")
	}
	if key := cfg.Providers.OpenWeatherMapKey; key != "" {
		snapCfg.WeatherProvider = openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:   key,
			Registry: registry,
			Reporter: reporter,
			Logger:   logger.With().Str("provider", openweathermap.ProviderName).Logger(),
		})
	} else {
		logger.Warn().Msg("OPENWEATHERMAP_API_KEY not set, using fallback weather")
	}
	snapshots := snapshot.NewService(snapCfg)

	orchCfg := prediction.Config{
		Snapshots:      snapshots,
		RemoteDisabled: cfg.RemoteDisabled,
		Reporter:       reporter,
		Logger:         logger.With().Str("component", "prediction").Logger(),
	}
	if url := cfg.Providers.ScoringURL; url != "" {
		orchCfg.Remote = remote.NewClient(remote.ClientConfig{
			BaseURL:  url,
			APIKey:   cfg.Providers.ScoringAPIKey,
			Registry: registry,
			Logger:   logger.With().Str("provider", remote.ProviderName).Logger(),
		})
	} else {
		logger.Info().Msg("SCORING_URL not set, using the local heuristic only")
	}

	return &Pipeline{
		Registry:    registry,
		Snapshots:   snapshots,
		Recommender: prediction.NewOrchestrator(orchCfg),
	}, nil
}
