package featureflags

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long flags are cached in memory.
	// Default: 1 minute
	CacheTTL time.Duration

	DefaultFlags map[string]*Flag
	Now          func() time.Time
}

// Service evaluates flags with caching and falls back to defaults when the
// repository is unavailable.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag
	now          func() time.Time

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.DefaultFlags == nil {
		cfg.DefaultFlags = DefaultFlags()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cfg.CacheTTL,
		defaultFlags: cfg.DefaultFlags,
		now:          cfg.Now,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag retrieves a flag by key: cache, then repository, then defaults.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(flag)
		return flag
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	return s.defaultFlags[key]
}

// GetAllFlags returns stored flags merged over the defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := maps.Clone(s.defaultFlags)

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}
	maps.Copy(result, flags)

	s.mu.Lock()
	s.cache = flags
	s.cacheExpiry = s.now().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// SetFlags updates flags atomically.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := s.now().UTC()
	for _, f := range flags {
		f.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	for _, f := range flags {
		s.setCached(f)
	}
	return nil
}

// SetFlag updates a single flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// ResetFlag removes the stored override of key so its default applies again.
func (s *Service) ResetFlag(ctx context.Context, key string) error {
	if !Known(key) {
		return ErrUnknownFlag
	}
	if err := s.repo.DeleteFlag(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// InvalidateCache clears the cached flags.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled reports whether a boolean flag is on.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.now().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) setCached(flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[flag.Key] = flag
	if now := s.now(); s.cacheExpiry.Before(now) {
		s.cacheExpiry = now.Add(s.cacheTTL)
	}
}

// RemotePredictionDisabled reports whether the remote model is switched off.
func (s *Service) RemotePredictionDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableRemotePrediction)
}

// NotificationSendingDisabled reports whether dispatch is paused.
func (s *Service) NotificationSendingDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableNotificationSending)
}

// ManualRefreshDisabled reports whether manual refresh is switched off.
func (s *Service) ManualRefreshDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableManualRefresh)
}
