// Package api provides the HTTP API for the leave-time service.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/handler"
	"github.com/commutetimely/leavetime/internal/api/middleware"
	"github.com/commutetimely/leavetime/internal/featureflags"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Authenticator middleware.TokenAuthenticator
	AdminUserIDs  []string
	ScoringAPIKey string

	Ops          *handler.OpsHandler
	Trips        handler.TripService
	Preferences  handler.PreferenceService
	Recommender  handler.Recommender
	Triggers     handler.TriggerPublisher
	FeatureFlags *featureflags.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if cfg.Ops == nil {
		cfg.Ops = handler.NewOpsHandler(handler.OpsHandlerConfig{})
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "leavetime-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	var refreshDisabled func(ctx context.Context) bool
	if cfg.FeatureFlags != nil {
		refreshDisabled = cfg.FeatureFlags.ManualRefreshDisabled
	}

	tripHandler := handler.NewTripHandler(cfg.Trips, cfg.Logger)
	recommendationHandler := handler.NewRecommendationHandler(handler.RecommendationHandlerConfig{
		Trips:       cfg.Trips,
		Preferences: cfg.Preferences,
		Recommender: cfg.Recommender,
		Logger:      cfg.Logger,
	})
	triggerHandler := handler.NewTriggerHandler(handler.TriggerHandlerConfig{
		Trips:           cfg.Trips,
		Publisher:       cfg.Triggers,
		RefreshDisabled: refreshDisabled,
		Logger:          cfg.Logger,
	})
	preferencesHandler := handler.NewPreferencesHandler(cfg.Preferences, cfg.Logger)
	predictHandler := handler.NewPredictHandler()

	authMiddleware := middleware.Auth(cfg.Authenticator)
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit)
	userRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)

	// Probes (public)
	r.Get("/health", cfg.Ops.HealthCheck)
	r.Get("/ready", cfg.Ops.ReadinessCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health/providers", cfg.Ops.ProviderHealth)

		// Scoring model, called service-to-service by the remote predictor.
		r.With(expensiveRateLimit, middleware.APIKey(cfg.ScoringAPIKey)).Post("/predict", predictHandler.Predict)

		// Authenticated user endpoints
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(userRateLimit)

			r.Route("/trips", func(r chi.Router) {
				r.Get("/", tripHandler.ListTrips)
				r.Post("/", tripHandler.CreateTrip)
				r.Route("/{tripId}", func(r chi.Router) {
					r.Get("/", tripHandler.GetTrip)
					r.Put("/", tripHandler.UpdateTrip)
					r.Delete("/", tripHandler.DeleteTrip)
					r.With(middleware.RateLimitByUser(middleware.ExpensiveRateLimit)).
						Get("/recommendation", recommendationHandler.GetRecommendation)
					r.With(middleware.RateLimitByUserAndPath(middleware.RefreshRateLimit)).
						Post("/refresh", triggerHandler.RefreshTrip)
				})
			})

			r.Post("/location", triggerHandler.UpdateLocation)

			r.Get("/preferences", preferencesHandler.GetPreferences)
			r.Put("/preferences", preferencesHandler.UpdatePreferences)
		})

		// Admin endpoints
		r.Route("/admin/snapshot-cache", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireAdmin(cfg.AdminUserIDs))
			r.Get("/", cfg.Ops.SnapshotCacheStats)
			r.Delete("/", cfg.Ops.InvalidateSnapshotCache)
		})
		if cfg.FeatureFlags != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlags, cfg.Logger)
			r.Route("/admin/feature-flags", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RequireAdmin(cfg.AdminUserIDs))
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
			})
		}
	})

	return r
}
