// Package app assembles the leave-time pipeline shared by the api and worker
// binaries: storage, provider adapters, the snapshot cache and the
// recommendation orchestrator.
package app

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// ProviderConfig holds credentials and tuning for the external adapters.
// A provider without credentials is left out and its fallback is used.
type ProviderConfig struct {
	MapboxToken       string
	OpenWeatherMapKey string
	ScoringURL        string
	ScoringAPIKey     string

	// SnapshotCacheTTL is the freshness window of fused snapshots.
	// Default: 90 seconds
	SnapshotCacheTTL time.Duration

	// TimeZone decides peak hours for fallback routes.
	// Default: the process zone
	TimeZone string
}

// ProviderConfigFromEnv reads MAPBOX_ACCESS_TOKEN, OPENWEATHERMAP_API_KEY,
// SCORING_URL, SCORING_API_KEY, SNAPSHOT_CACHE_TTL and FALLBACK_TIME_ZONE.
func ProviderConfigFromEnv() ProviderConfig {
	cfg := ProviderConfig{
		MapboxToken:       os.Getenv("MAPBOX_ACCESS_TOKEN"),
		OpenWeatherMapKey: os.Getenv("OPENWEATHERMAP_API_KEY"),
		ScoringURL:        os.Getenv("SCORING_URL"),
		ScoringAPIKey:     os.Getenv("SCORING_API_KEY"),
		TimeZone:          os.Getenv("FALLBACK_TIME_ZONE"),
	}
	if d, err := time.ParseDuration(os.Getenv("SNAPSHOT_CACHE_TTL")); err == nil && d > 0 {
		cfg.SnapshotCacheTTL = d
	}
	return cfg
}

// StorageBackend returns STORAGE_BACKEND, defaulting to postgres.
func StorageBackend() string {
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		return v
	}
	return StoragePostgres
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv(logger zerolog.Logger) {
	err := godotenv.Load()
	switch {
	case err == nil:
		logger.Info().Msg("loaded .env file")
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug().Msg("no .env file found, using environment variables")
	default:
		logger.Warn().Err(err).Msg("failed to load .env file")
	}
}
