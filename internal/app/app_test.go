package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/app"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/prediction"
)

func TestProviderConfigFromEnv(t *testing.T) {
	t.Setenv("MAPBOX_ACCESS_TOKEN", "pk.test")
	t.Setenv("OPENWEATHERMAP_API_KEY", "owm")
	t.Setenv("SCORING_URL", "https://scoring.internal")
	t.Setenv("SCORING_API_KEY", "secret")
	t.Setenv("SNAPSHOT_CACHE_TTL", "2m")
	t.Setenv("FALLBACK_TIME_ZONE", "Europe/Amsterdam")

	cfg := app.ProviderConfigFromEnv()

	assert.Equal(t, app.ProviderConfig{
		MapboxToken:       "pk.test",
		OpenWeatherMapKey: "owm",
		ScoringURL:        "https://scoring.internal",
		ScoringAPIKey:     "secret",
		SnapshotCacheTTL:  2 * time.Minute,
		TimeZone:          "Europe/Amsterdam",
	}, cfg)
}

func TestProviderConfigFromEnv_IgnoresBadTTL(t *testing.T) {
	t.Setenv("SNAPSHOT_CACHE_TTL", "soon")

	assert.Zero(t, app.ProviderConfigFromEnv().SnapshotCacheTTL)
}

func TestStorageBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	assert.Equal(t, app.StoragePostgres, app.StorageBackend())

	t.Setenv("STORAGE_BACKEND", app.StorageMemory)
	assert.Equal(t, app.StorageMemory, app.StorageBackend())
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := app.OpenStores(context.Background(), app.StorageMemory, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.Trips)
	assert.NotNil(t, stores.Preferences)
	assert.NotNil(t, stores.Flags)
	assert.NotNil(t, stores.Notifications)
	assert.NoError(t, stores.Ping(context.Background()))
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, err := app.OpenStores(context.Background(), "sqlite", zerolog.Nop())

	assert.ErrorContains(t, err, `unknown storage backend "sqlite"`)
}

func TestNewPipeline_WithoutProviders(t *testing.T) {
	p, err := app.NewPipeline(app.PipelineConfig{Logger: zerolog.Nop()})
	require.NoError(t, err)

	assert.Empty(t, p.Registry.Names())

	origin := geo.Coordinate{Lat: 52.37, Lon: 4.89}
	dest := geo.Coordinate{Lat: 52.09, Lon: 5.12}
	arrival := time.Now().Add(3 * time.Hour)

	rec := p.Recommender.Recommend(context.Background(), origin, dest, arrival, 10)

	assert.Equal(t, prediction.SourceLocalHeuristic, rec.Prediction.Source)
	assert.True(t, rec.Snapshot.RouteFallback)
	assert.True(t, rec.Snapshot.WeatherFallback)
	assert.True(t, rec.Prediction.LeaveTime.Before(arrival))
}

func TestNewPipeline_RegistersProviders(t *testing.T) {
	p, err := app.NewPipeline(app.PipelineConfig{
		Providers: app.ProviderConfig{
			MapboxToken:       "pk.test",
			OpenWeatherMapKey: "owm",
			ScoringURL:        "http://127.0.0.1:1",
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"mapbox", "openweathermap", "prediction"}, p.Registry.Names())
}

func TestNewPipeline_BadTimeZone(t *testing.T) {
	_, err := app.NewPipeline(app.PipelineConfig{
		Providers: app.ProviderConfig{TimeZone: "Mars/Olympus"},
		Logger:    zerolog.Nop(),
	})

	assert.ErrorContains(t, err, "Mars/Olympus")
}

func TestLoadDotEnv(t *testing.T) {
	const key = "LEAVETIME_DOTENV_TEST"
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-file\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	app.LoadDotEnv(zerolog.Nop())

	assert.Equal(t, "from-file", os.Getenv(key))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	t.Chdir(t.TempDir())

	assert.NotPanics(t, func() { app.LoadDotEnv(zerolog.Nop()) })
}
