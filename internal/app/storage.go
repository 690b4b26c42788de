package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/database"
	"github.com/commutetimely/leavetime/internal/featureflags"
	"github.com/commutetimely/leavetime/internal/notification"
	"github.com/commutetimely/leavetime/internal/preference"
	"github.com/commutetimely/leavetime/internal/trip"
)

// Stores bundles the repositories of one backend.
type Stores struct {
	Trips         trip.Repository
	Preferences   preference.Repository
	Flags         featureflags.Repository
	Notifications notification.Center

	pool *pgxpool.Pool
}

// OpenStores connects the given backend. The memory backend keeps nothing
// across restarts and only suits local runs and tests.
func OpenStores(ctx context.Context, backend string, logger zerolog.Logger) (*Stores, error) {
	switch backend {
	case StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return &Stores{
			Trips:         trip.NewInMemoryRepository(),
			Preferences:   preference.NewInMemoryRepository(),
			Flags:         featureflags.NewInMemoryRepository(),
			Notifications: notification.NewMemoryCenter(),
		}, nil

	case StoragePostgres:
		cfg := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Str("database", cfg.Database).
			Msg("database connected")
		return &Stores{
			Trips:         trip.NewPostgresRepository(pool),
			Preferences:   preference.NewPostgresRepository(pool),
			Flags:         featureflags.NewPostgresRepository(pool),
			Notifications: notification.NewPostgresCenter(pool),
			pool:          pool,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Ping reports whether the backend is reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the connection pool, if any.
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
