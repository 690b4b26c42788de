package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/geo"
)

// DefaultSubjectPrefix prefixes every subject.
const DefaultSubjectPrefix = "leavetime"

// Subject suffixes.
const (
	SubjectTripChanged        = "trip.changed"
	SubjectTripDeleted        = "trip.deleted"
	SubjectTripRefresh        = "trip.refresh"
	SubjectLocationChanged    = "location.changed"
	SubjectPreferencesChanged = "preferences.changed"
)

// TripEvent announces a change to one trip.
type TripEvent struct {
	TripID     string    `json:"tripId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// LocationEvent announces a significant change of a user's position.
type LocationEvent struct {
	UserID     string         `json:"userId"`
	Location   geo.Coordinate `json:"location"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// PreferenceEvent announces a change to a user's notification preferences.
type PreferenceEvent struct {
	UserID                    string    `json:"userId"`
	LeaveNotificationsEnabled bool      `json:"leaveNotificationsEnabled"`
	OccurredAt                time.Time `json:"occurredAt"`
}

// Publisher publishes domain events.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

// NewPublisher creates a publisher. An empty prefix uses DefaultSubjectPrefix.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix, now: time.Now}
}

func (p *Publisher) subject(suffix string) string {
	return p.prefix + "." + suffix
}

// TripChanged announces a created or edited trip.
func (p *Publisher) TripChanged(ctx context.Context, tripID, userID string) error {
	return p.publishTrip(ctx, SubjectTripChanged, tripID, userID)
}

// TripDeleted announces a deleted trip.
func (p *Publisher) TripDeleted(ctx context.Context, tripID, userID string) error {
	return p.publishTrip(ctx, SubjectTripDeleted, tripID, userID)
}

// RefreshRequested asks for a forced recompute of one trip.
func (p *Publisher) RefreshRequested(ctx context.Context, tripID, userID string) error {
	return p.publishTrip(ctx, SubjectTripRefresh, tripID, userID)
}

// LocationChanged announces a user's new position.
func (p *Publisher) LocationChanged(ctx context.Context, userID string, at geo.Coordinate) error {
	ev := LocationEvent{UserID: userID, Location: at, OccurredAt: p.now().UTC()}
	if err := Publish(ctx, p.nc, p.subject(SubjectLocationChanged), ev); err != nil {
		return fmt.Errorf("publishing location change: %w", err)
	}
	return nil
}

// PreferencesChanged announces a change of the notification toggle.
func (p *Publisher) PreferencesChanged(ctx context.Context, userID string, leaveNotificationsEnabled bool) error {
	ev := PreferenceEvent{UserID: userID, LeaveNotificationsEnabled: leaveNotificationsEnabled, OccurredAt: p.now().UTC()}
	if err := Publish(ctx, p.nc, p.subject(SubjectPreferencesChanged), ev); err != nil {
		return fmt.Errorf("publishing preference change: %w", err)
	}
	return nil
}

func (p *Publisher) publishTrip(ctx context.Context, suffix, tripID, userID string) error {
	ev := TripEvent{TripID: tripID, UserID: userID, OccurredAt: p.now().UTC()}
	if err := Publish(ctx, p.nc, p.subject(suffix), ev); err != nil {
		return fmt.Errorf("publishing %s: %w", suffix, err)
	}
	return nil
}

// Handler receives domain events.
type Handler interface {
	TripChanged(ctx context.Context, ev TripEvent)
	TripDeleted(ctx context.Context, ev TripEvent)
	RefreshRequested(ctx context.Context, ev TripEvent)
	LocationChanged(ctx context.Context, ev LocationEvent)
	PreferencesChanged(ctx context.Context, ev PreferenceEvent)
}

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	Prefix string
	Queue  string
	Logger zerolog.Logger
}

// Subscriber routes NATS events to a Handler.
type Subscriber struct {
	nc     *nats.Conn
	cfg    SubscriberConfig
	subs   []*nats.Subscription
	logger zerolog.Logger
}

// NewSubscriber creates a subscriber.
func NewSubscriber(nc *nats.Conn, cfg SubscriberConfig) *Subscriber {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultSubjectPrefix
	}
	return &Subscriber{nc: nc, cfg: cfg, logger: cfg.Logger}
}

// Start subscribes h to every event subject.
func (s *Subscriber) Start(h Handler) error {
	subject := func(suffix string) string { return s.cfg.Prefix + "." + suffix }

	register := []func() (*nats.Subscription, error){
		func() (*nats.Subscription, error) {
			return Subscribe(s.nc, subject(SubjectTripChanged), s.cfg.Queue, s.logger, h.TripChanged)
		},
		func() (*nats.Subscription, error) {
			return Subscribe(s.nc, subject(SubjectTripDeleted), s.cfg.Queue, s.logger, h.TripDeleted)
		},
		func() (*nats.Subscription, error) {
			return Subscribe(s.nc, subject(SubjectTripRefresh), s.cfg.Queue, s.logger, h.RefreshRequested)
		},
		func() (*nats.Subscription, error) {
			return Subscribe(s.nc, subject(SubjectLocationChanged), s.cfg.Queue, s.logger, h.LocationChanged)
		},
		func() (*nats.Subscription, error) {
			return Subscribe(s.nc, subject(SubjectPreferencesChanged), s.cfg.Queue, s.logger, h.PreferencesChanged)
		},
	}

	for _, r := range register {
		sub, err := r()
		if err != nil {
			_ = s.Stop()
			return fmt.Errorf("subscribing: %w", err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info().Str("prefix", s.cfg.Prefix).Int("subjects", len(s.subs)).Msg("event subscriber started")
	return nil
}

// Stop drains all subscriptions.
func (s *Subscriber) Stop() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}
