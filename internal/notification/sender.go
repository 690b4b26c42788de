package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubSender publishes due notifications to a push topic, where the
// delivery service fans them out to devices.
type PubSubSender struct {
	publisher *pubsub.Publisher
}

// NewPubSubSender creates a sender publishing to topic.
func NewPubSubSender(client *pubsub.Client, topic string) *PubSubSender {
	return &PubSubSender{publisher: client.Publisher(topic)}
}

// Send publishes req as JSON and waits for the server ack.
func (s *PubSubSender) Send(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"user_id": req.UserID,
			"kind":    string(req.Kind),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing notification %s: %w", req.ID, err)
	}
	return nil
}

// Stop flushes pending publishes.
func (s *PubSubSender) Stop() {
	s.publisher.Stop()
}

// LogSender writes notifications to the log. Used for local runs.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a sender that logs.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs req.
func (s *LogSender) Send(_ context.Context, req Request) error {
	s.logger.Info().
		Str("notification_id", req.ID).
		Str("user_id", req.UserID).
		Str("title", req.Title).
		Str("body", req.Body).
		Time("fire_at", req.FireAt).
		Msg("notification")
	return nil
}
