package trip

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/routing"
)

// Validation constants.
const (
	MaxLabelLength   = 80
	MaxBufferMinutes = 180
	DefaultTimeZone  = "UTC"
)

// EventPublisher announces trip changes to the scheduler.
type EventPublisher interface {
	TripChanged(ctx context.Context, tripID, userID string) error
	TripDeleted(ctx context.Context, tripID, userID string) error
}

// ServiceConfig holds configuration for the trip service.
type ServiceConfig struct {
	Repository Repository
	Publisher  EventPublisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service provides trip operations.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new trip service. Publisher may be nil.
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

// List retrieves the trips of a user.
func (s *Service) List(ctx context.Context, userID string, limit int, cursor string) (*models.PagedTrips, error) {
	result, err := s.repo.List(ctx, userID, ListOptions{Limit: limit, Cursor: cursor})
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]models.Trip, 0, len(result.Items))
	for _, t := range result.Items {
		items = append(items, ToAPITrip(t, now))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedTrips{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Get retrieves a trip owned by userID.
func (s *Service) Get(ctx context.Context, userID, tripID string) (*Trip, error) {
	return s.repo.GetByUserAndID(ctx, userID, tripID)
}

// Create validates and stores a new trip, then announces it.
func (s *Service) Create(ctx context.Context, userID string, input *models.TripCreateRequest) (*Trip, error) {
	if fieldErrors := validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := s.now().UTC()
	t := &Trip{
		ID:            "trp_" + uuid.New().String()[:22],
		UserID:        userID,
		Label:         input.Label,
		Origin:        toLocationPtr(input.Origin),
		Destination:   toLocation(input.Destination),
		ArrivalTime:   input.ArrivalTime.UTC(),
		TimeZone:      input.TimeZone,
		BufferMinutes: input.BufferMinutes,
		RepeatDays:    toWeekdays(input.RepeatDays),
		Active:        input.Active == nil || *input.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.TimeZone == "" {
		t.TimeZone = DefaultTimeZone
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.announce(ctx, t, false)
	return t, nil
}

// Update applies a partial update to a trip owned by userID, then announces it.
func (s *Service) Update(ctx context.Context, userID, tripID string, input *models.TripUpdateRequest) (*Trip, error) {
	t, err := s.repo.GetByUserAndID(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}

	if fieldErrors := validateUpdateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Label != nil {
		t.Label = *input.Label
	}
	if input.ClearOrigin {
		t.Origin = nil
	}
	if input.Origin != nil {
		t.Origin = toLocationPtr(input.Origin)
	}
	if input.Destination != nil {
		t.Destination = toLocation(*input.Destination)
	}
	if input.ArrivalTime != nil {
		t.ArrivalTime = input.ArrivalTime.UTC()
	}
	if input.TimeZone != nil {
		t.TimeZone = *input.TimeZone
	}
	if input.BufferMinutes != nil {
		t.BufferMinutes = input.BufferMinutes
	}
	if input.RepeatDays != nil {
		t.RepeatDays = toWeekdays(*input.RepeatDays)
	}
	if input.Active != nil {
		t.Active = *input.Active
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.announce(ctx, t, false)
	return t, nil
}

// Delete removes a trip owned by userID, then announces the deletion.
func (s *Service) Delete(ctx context.Context, userID, tripID string) error {
	t, err := s.repo.GetByUserAndID(ctx, userID, tripID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, tripID); err != nil {
		return err
	}

	s.announce(ctx, t, true)
	return nil
}

// RecordRoute stores the latest route seen for a trip.
func (s *Service) RecordRoute(ctx context.Context, tripID string, route routing.RouteSnapshot) error {
	if err := s.repo.UpdateLastRoute(ctx, tripID, route); err != nil {
		return fmt.Errorf("recording route for trip %s: %w", tripID, err)
	}
	return nil
}

// announce publishes a change event. A failure is logged: the write already
// succeeded and the next periodic wake reconciles the schedule.
func (s *Service) announce(ctx context.Context, t *Trip, deleted bool) {
	if s.publisher == nil {
		return
	}

	var err error
	if deleted {
		err = s.publisher.TripDeleted(ctx, t.ID, t.UserID)
	} else {
		err = s.publisher.TripChanged(ctx, t.ID, t.UserID)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("trip_id", t.ID).
			Bool("deleted", deleted).
			Msg("failed to publish trip event")
	}
}

func validateCreateInput(input *models.TripCreateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Label == "" {
		errs = append(errs, models.FieldError{Field: "label", Message: "is required"})
	} else {
		errs = append(errs, validateLabel(input.Label)...)
	}
	if input.Origin != nil {
		errs = append(errs, validateLocation(input.Origin, "origin")...)
	}
	errs = append(errs, validateLocation(&input.Destination, "destination")...)

	if input.ArrivalTime.IsZero() {
		errs = append(errs, models.FieldError{Field: "arrivalTime", Message: "is required"})
	}
	if input.TimeZone != "" {
		errs = append(errs, validateTimeZone(input.TimeZone)...)
	}
	if input.BufferMinutes != nil {
		errs = append(errs, validateBuffer(*input.BufferMinutes)...)
	}
	errs = append(errs, validateRepeatDays(input.RepeatDays)...)

	return errs
}

func validateUpdateInput(input *models.TripUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Label != nil {
		if *input.Label == "" {
			errs = append(errs, models.FieldError{Field: "label", Message: "cannot be empty"})
		} else {
			errs = append(errs, validateLabel(*input.Label)...)
		}
	}
	if input.Origin != nil {
		if input.ClearOrigin {
			errs = append(errs, models.FieldError{Field: "clearOrigin", Message: "cannot be combined with origin"})
		}
		errs = append(errs, validateLocation(input.Origin, "origin")...)
	}
	if input.Destination != nil {
		errs = append(errs, validateLocation(input.Destination, "destination")...)
	}
	if input.ArrivalTime != nil && input.ArrivalTime.IsZero() {
		errs = append(errs, models.FieldError{Field: "arrivalTime", Message: "cannot be empty"})
	}
	if input.TimeZone != nil {
		errs = append(errs, validateTimeZone(*input.TimeZone)...)
	}
	if input.BufferMinutes != nil {
		errs = append(errs, validateBuffer(*input.BufferMinutes)...)
	}
	if input.RepeatDays != nil {
		errs = append(errs, validateRepeatDays(*input.RepeatDays)...)
	}

	return errs
}

func validateLabel(label string) []models.FieldError {
	if len(label) > MaxLabelLength {
		return []models.FieldError{{Field: "label", Message: "must be at most 80 characters"}}
	}
	return nil
}

func validateLocation(loc *models.TripLocation, prefix string) []models.FieldError {
	var errs []models.FieldError

	if loc.Point.Lat < -90 || loc.Point.Lat > 90 {
		errs = append(errs, models.FieldError{
			Field:   prefix + ".point.lat",
			Message: "must be between -90 and 90",
		})
	}
	if loc.Point.Lon < -180 || loc.Point.Lon > 180 {
		errs = append(errs, models.FieldError{
			Field:   prefix + ".point.lon",
			Message: "must be between -180 and 180",
		})
	}

	return errs
}

func validateTimeZone(tz string) []models.FieldError {
	if _, err := time.LoadLocation(tz); err != nil || tz == "" {
		return []models.FieldError{{Field: "timeZone", Message: "must be an IANA time zone name"}}
	}
	return nil
}

func validateBuffer(minutes int) []models.FieldError {
	if minutes < 0 || minutes > MaxBufferMinutes {
		return []models.FieldError{{Field: "bufferMinutes", Message: "must be between 0 and 180"}}
	}
	return nil
}

func validateRepeatDays(days []int) []models.FieldError {
	seen := make(map[int]bool, len(days))
	for _, day := range days {
		if day < 1 || day > 7 {
			return []models.FieldError{{Field: "repeatDays", Message: "must contain values between 1 and 7"}}
		}
		if seen[day] {
			return []models.FieldError{{Field: "repeatDays", Message: "must not contain duplicates"}}
		}
		seen[day] = true
	}
	return nil
}

func toLocation(l models.TripLocation) geo.Location {
	return geo.Location{
		Coordinate:  geo.Coordinate{Lat: l.Point.Lat, Lon: l.Point.Lon},
		Address:     l.Address,
		DisplayName: l.DisplayName,
	}
}

func toLocationPtr(l *models.TripLocation) *geo.Location {
	if l == nil {
		return nil
	}
	loc := toLocation(*l)
	return &loc
}

func toAPILocation(l geo.Location) models.TripLocation {
	return models.TripLocation{
		Point:       models.Point{Lat: l.Lat, Lon: l.Lon},
		Address:     l.Address,
		DisplayName: l.DisplayName,
	}
}

func toWeekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, WeekdayFromISO(d))
	}
	slices.Sort(out)
	return out
}

// ToAPITrip converts a domain Trip to an API Trip.
func ToAPITrip(t *Trip, now time.Time) models.Trip {
	var origin *models.TripLocation
	if t.Origin != nil {
		o := toAPILocation(*t.Origin)
		origin = &o
	}

	days := make([]int, 0, len(t.RepeatDays))
	for _, d := range t.RepeatDays {
		days = append(days, ISOFromWeekday(d))
	}
	slices.Sort(days)

	var next *models.Timestamp
	if t.Active {
		next = models.TimestampPtr(t.NextArrival(now))
	}

	return models.Trip{
		ID:            t.ID,
		Label:         t.Label,
		Origin:        origin,
		Destination:   toAPILocation(t.Destination),
		ArrivalTime:   models.Timestamp(t.ArrivalTime),
		NextArrival:   next,
		TimeZone:      t.TimeZone,
		BufferMinutes: t.BufferMinutes,
		RepeatDays:    days,
		Active:        t.Active,
		CreatedAt:     models.Timestamp(t.CreatedAt),
		UpdatedAt:     models.Timestamp(t.UpdatedAt),
	}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
