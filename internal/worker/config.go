// Package worker hosts the scheduling worker's background jobs: the
// periodic wake that recomputes every active trip, and the Pub/Sub
// subscription that triggers it.
package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the worker configuration.
type Config struct {
	Port string

	// ProjectID enables Pub/Sub. When empty the worker relies on the
	// fallback ticker and logs notifications instead of publishing them.
	ProjectID        string
	WakeSubscription string
	PushTopic        string

	NATSURL   string
	NATSQueue string

	// WakeInterval drives the fallback ticker. Zero disables it.
	WakeInterval time.Duration
	WakeTimeout  time.Duration

	DispatchInterval time.Duration
	Hysteresis       time.Duration
	ReminderOffsets  []time.Duration
	RefreshInterval  time.Duration
	RefreshBurst     int
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Port:             "8080",
		WakeSubscription: "leavetime-periodic-wake",
		PushTopic:        "leavetime-push",
		NATSURL:          "nats://localhost:4222",
		NATSQueue:        "leavetime-worker",
		WakeInterval:     5 * time.Minute,
		WakeTimeout:      2 * time.Minute,
		DispatchInterval: 15 * time.Second,
		Hysteresis:       120 * time.Second,
		ReminderOffsets:  []time.Duration{15 * time.Minute, 5 * time.Minute},
		RefreshInterval:  30 * time.Second,
		RefreshBurst:     3,
	}
}

// LoadConfig reads the configuration from the environment over the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.Port = getEnvOrDefault("APP_PORT", cfg.Port)
	cfg.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	cfg.WakeSubscription = getEnvOrDefault("PUBSUB_WAKE_SUBSCRIPTION", cfg.WakeSubscription)
	cfg.PushTopic = getEnvOrDefault("PUBSUB_PUSH_TOPIC", cfg.PushTopic)
	cfg.NATSURL = getEnvOrDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSQueue = getEnvOrDefault("NATS_QUEUE", cfg.NATSQueue)

	var errs []error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WAKE_INTERVAL", &cfg.WakeInterval},
		{"WAKE_TIMEOUT", &cfg.WakeTimeout},
		{"DISPATCH_INTERVAL", &cfg.DispatchInterval},
		{"SCHEDULER_HYSTERESIS", &cfg.Hysteresis},
		{"REFRESH_INTERVAL", &cfg.RefreshInterval},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, *d.dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	if raw := os.Getenv("REFRESH_BURST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("REFRESH_BURST: %w", err))
		} else {
			cfg.RefreshBurst = n
		}
	}

	if raw := os.Getenv("REMINDER_OFFSETS"); raw != "" {
		offsets, err := parseOffsets(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.ReminderOffsets = offsets
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the worker cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.WakeInterval < 0 {
		errs = append(errs, errors.New("wake interval must not be negative"))
	}
	if c.WakeTimeout <= 0 {
		errs = append(errs, errors.New("wake timeout must be positive"))
	}
	if c.DispatchInterval <= 0 {
		errs = append(errs, errors.New("dispatch interval must be positive"))
	}
	if c.RefreshBurst <= 0 {
		errs = append(errs, errors.New("refresh burst must be positive"))
	}
	for _, off := range c.ReminderOffsets {
		if off <= 0 || off%time.Minute != 0 {
			errs = append(errs, fmt.Errorf("reminder offset %s must be a positive whole number of minutes", off))
		}
	}
	return errors.Join(errs...)
}

// PubSubEnabled reports whether a Pub/Sub project is configured.
func (c Config) PubSubEnabled() bool {
	return c.ProjectID != ""
}

func parseOffsets(raw string) ([]time.Duration, error) {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("REMINDER_OFFSETS: %w", err)
		}
		offsets = append(offsets, d)
	}
	return offsets, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
