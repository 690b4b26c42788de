// Package main provides the entrypoint for the leave-time worker. The worker
// owns trip scheduling: it consumes trip events from NATS, runs periodic
// wakes and sends due notifications.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/middleware"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/app"
	"github.com/commutetimely/leavetime/internal/events"
	"github.com/commutetimely/leavetime/internal/featureflags"
	"github.com/commutetimely/leavetime/internal/notification"
	"github.com/commutetimely/leavetime/internal/preference"
	"github.com/commutetimely/leavetime/internal/scheduler"
	"github.com/commutetimely/leavetime/internal/telemetry"
	"github.com/commutetimely/leavetime/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "leavetime-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	app.LoadDotEnv(log)

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting leave-time worker")

	cfg, err := worker.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid worker configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	stores, err := app.OpenStores(ctx, app.StorageBackend(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer stores.Close()

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: stores.Flags,
		Logger:     log,
		CacheTTL:   30 * time.Second,
	})

	pipeline, err := app.NewPipeline(app.PipelineConfig{
		Providers:      app.ProviderConfigFromEnv(),
		RemoteDisabled: flags.RemotePredictionDisabled,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build prediction pipeline")
	}

	manager := notification.NewManager(notification.ManagerConfig{
		Center:          stores.Notifications,
		ReminderOffsets: cfg.ReminderOffsets,
		Logger:          log.With().Str("component", "notification").Logger(),
	})
	if err := manager.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load scheduled notifications")
	}

	var wakeJob *worker.WakeJob
	coordinator := scheduler.NewCoordinator(scheduler.Config{
		Trips: stores.Trips,
		Preferences: preference.NewService(preference.ServiceConfig{
			Repository: stores.Preferences,
			Logger:     log,
		}),
		Recommender:     pipeline.Recommender,
		Notifier:        manager,
		Hysteresis:      cfg.Hysteresis,
		RefreshInterval: cfg.RefreshInterval,
		RefreshBurst:    cfg.RefreshBurst,
		OnOutcome: func(o scheduler.Outcome) {
			wakeJob.RecordOutcome(o)
		},
		Logger: log.With().Str("component", "scheduler").Logger(),
	})
	wakeJob = worker.NewWakeJob(worker.WakeJobConfig{
		Coordinator: coordinator,
		Timeout:     cfg.WakeTimeout,
		Logger:      log,
	})

	nc, err := events.Connect(events.ConnConfig{
		URL:    cfg.NATSURL,
		Name:   serviceName,
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	subscriber := events.NewSubscriber(nc, events.SubscriberConfig{
		Prefix: events.DefaultSubjectPrefix,
		Queue:  cfg.NATSQueue,
		Logger: log,
	})
	if err := subscriber.Start(scheduler.NewEventHandler(coordinator, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to trip events")
	}

	var sender notification.Sender
	if cfg.PubSubEnabled() {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Pub/Sub client")
		}
		defer client.Close()

		pubsubSender := notification.NewPubSubSender(client, cfg.PushTopic)
		defer pubsubSender.Stop()
		sender = pubsubSender

		handler := worker.NewPubSubHandler(worker.PubSubConfig{
			Client:           client,
			SubscriptionName: cfg.WakeSubscription,
			Jobs:             worker.NewJobs(wakeJob, manager, log),
			Logger:           log,
		})
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Pub/Sub handler stopped")
			}
		}()
		log.Info().
			Str("project", cfg.ProjectID).
			Str("subscription", cfg.WakeSubscription).
			Msg("periodic wakes driven by Pub/Sub")
	} else {
		sender = notification.NewLogSender(log)
		go wakeJob.RunEvery(ctx, cfg.WakeInterval)
		log.Warn().
			Dur("interval", cfg.WakeInterval).
			Msg("GOOGLE_CLOUD_PROJECT not set, using local wake ticker and log sender")
	}

	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		Center:      stores.Notifications,
		Sender:      sender,
		Interval:    cfg.DispatchInterval,
		Paused:      flags.NotificationSendingDisabled,
		OnDelivered: manager.Delivered,
		Logger:      log.With().Str("component", "dispatcher").Logger(),
	})
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("dispatcher stopped")
		}
	}()

	// Reconcile schedules left over from before the restart.
	go wakeJob.Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           healthRouter(log, nc.IsConnected, stores, wakeJob),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")

	if err := subscriber.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to unsubscribe")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := coordinator.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not drain before shutdown")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func healthRouter(log zerolog.Logger, natsConnected func() bool, stores *app.Stores, wakeJob *worker.WakeJob) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if !natsConnected() {
			response.ServiceUnavailable(w, r, "nats disconnected", 0)
			return
		}
		if err := stores.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, r, "storage unavailable", 0)
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/metrics/wake", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, wakeJob.MetricsSnapshot())
	})
	return r
}
