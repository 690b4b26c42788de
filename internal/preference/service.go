package preference

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
)

// EventPublisher announces preference changes to the scheduler.
type EventPublisher interface {
	PreferencesChanged(ctx context.Context, userID string, leaveNotificationsEnabled bool) error
}

// ServiceConfig holds configuration for the preference service.
type ServiceConfig struct {
	Repository Repository
	Publisher  EventPublisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service provides preference operations.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new preference service. Publisher may be nil.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      cfg.Repository,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Preferences returns the stored preferences of a user, or the defaults.
func (s *Service) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrPreferencesNotFound) {
		return Defaults(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves the preferences of a user in API form.
func (s *Service) Get(ctx context.Context, userID string) (*models.Preferences, error) {
	p, err := s.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToAPIPreferences(p), nil
}

// Update applies a partial update. Toggling notifications is announced so
// the scheduler can cancel or restore the user's alerts.
func (s *Service) Update(ctx context.Context, userID string, input *models.PreferencesInput) (*models.Preferences, error) {
	if input.DefaultBufferMinutes != nil {
		if v := *input.DefaultBufferMinutes; v < 0 || v > MaxBufferMinutes {
			return nil, &ValidationError{Errors: []models.FieldError{{
				Field:   "defaultBufferMinutes",
				Message: "must be between 0 and 180",
			}}}
		}
	}

	p, err := s.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := false
	if input.DefaultBufferMinutes != nil && *input.DefaultBufferMinutes != p.DefaultBufferMinutes {
		p.DefaultBufferMinutes = *input.DefaultBufferMinutes
		changed = true
	}
	if input.LeaveNotificationsEnabled != nil && *input.LeaveNotificationsEnabled != p.LeaveNotificationsEnabled {
		p.LeaveNotificationsEnabled = *input.LeaveNotificationsEnabled
		changed = true
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}

	if changed && s.publisher != nil {
		if err := s.publisher.PreferencesChanged(ctx, userID, p.LeaveNotificationsEnabled); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to publish preferences event")
		}
	}

	return ToAPIPreferences(p), nil
}

// ToAPIPreferences converts domain preferences to the API form.
func ToAPIPreferences(p *Preferences) *models.Preferences {
	return &models.Preferences{
		DefaultBufferMinutes:      p.DefaultBufferMinutes,
		LeaveNotificationsEnabled: p.LeaveNotificationsEnabled,
		UpdatedAt:                 models.Timestamp(p.UpdatedAt),
	}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
