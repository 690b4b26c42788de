// Package main provides the entrypoint for the leave-time API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api"
	"github.com/commutetimely/leavetime/internal/api/handler"
	"github.com/commutetimely/leavetime/internal/api/middleware"
	"github.com/commutetimely/leavetime/internal/app"
	"github.com/commutetimely/leavetime/internal/auth"
	"github.com/commutetimely/leavetime/internal/events"
	"github.com/commutetimely/leavetime/internal/featureflags"
	"github.com/commutetimely/leavetime/internal/preference"
	"github.com/commutetimely/leavetime/internal/telemetry"
	"github.com/commutetimely/leavetime/internal/trip"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "leavetime-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	app.LoadDotEnv(log)

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting leave-time API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()

	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	stores, err := app.OpenStores(ctx, app.StorageBackend(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer stores.Close()

	nc, err := events.Connect(events.ConnConfig{
		URL:    os.Getenv("NATS_URL"),
		Name:   serviceName,
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()
	publisher := events.NewPublisher(nc, events.DefaultSubjectPrefix)

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: stores.Flags,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	providers := app.ProviderConfigFromEnv()
	pipeline, err := app.NewPipeline(app.PipelineConfig{
		Providers:      providers,
		RemoteDisabled: flags.RemotePredictionDisabled,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build prediction pipeline")
	}

	tripService := trip.NewService(trip.ServiceConfig{
		Repository: stores.Trips,
		Publisher:  publisher,
		Logger:     log,
	})
	prefService := preference.NewService(preference.ServiceConfig{
		Repository: stores.Preferences,
		Publisher:  publisher,
		Logger:     log,
	})

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
	})

	ops := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Registry:  pipeline.Registry,
		Snapshots: pipeline.Snapshots,
		Ready: func(ctx context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return stores.Ping(ctx)
		},
	})

	router := api.NewRouter(api.RouterConfig{
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       metrics,
		RequireTLS:    os.Getenv("REQUIRE_TLS") == "true",
		Authenticator: jwtService,
		AdminUserIDs:  splitList(os.Getenv("ADMIN_USER_IDS")),
		ScoringAPIKey: providers.ScoringAPIKey,
		Ops:           ops,
		Trips:         tripService,
		Preferences:   prefService,
		Recommender:   pipeline.Recommender,
		Triggers:      publisher,
		FeatureFlags:  flags,
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}

	log.Info().Msg("server stopped")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
