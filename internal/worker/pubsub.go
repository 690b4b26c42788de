package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the wake subscription.
const (
	JobPeriodicWake = "periodic_wake"
	JobCancelAll    = "cancel_all"
)

// ErrUnknownJob is returned for messages with an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// WakeMessage is the payload published by the scheduler (Cloud Scheduler
// or an operator) to trigger worker jobs.
type WakeMessage struct {
	JobType string `json:"job_type"`
	Reason  string `json:"reason,omitempty"`
}

// Canceller withdraws every notification the pipeline manages.
type Canceller interface {
	CancelAll(ctx context.Context) error
}

// Jobs executes worker jobs independent of the transport that delivers them.
type Jobs struct {
	wake      *WakeJob
	canceller Canceller
	logger    zerolog.Logger
}

// NewJobs creates a job dispatcher.
func NewJobs(wake *WakeJob, canceller Canceller, logger zerolog.Logger) *Jobs {
	return &Jobs{wake: wake, canceller: canceller, logger: logger}
}

// Handle decodes a job message and runs it.
func (j *Jobs) Handle(ctx context.Context, data []byte) error {
	var msg WakeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing job message: %w", err)
	}

	switch msg.JobType {
	case JobPeriodicWake:
		result := j.wake.Run(ctx)
		if errors.Is(result.Err, ErrWakeInProgress) {
			return nil
		}
		return result.Err
	case JobCancelAll:
		j.logger.Warn().Str("reason", msg.Reason).Msg("cancelling all managed notifications")
		return j.canceller.CancelAll(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *Jobs
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	Client           *pubsub.Client
	SubscriptionName string
	Jobs             *Jobs
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler. The client is owned by
// the caller, which shares it with the push sender.
func NewPubSubHandler(cfg PubSubConfig) *PubSubHandler {
	subscriber := cfg.Client.Subscriber(cfg.SubscriptionName)

	// A wake can take a while; keep leases extended and process one at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handleMessage(ctx, msg.ID, msg.PublishTime, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handleMessage runs the job and reports whether the message should be acked.
// Messages that can never succeed are acked to prevent redelivery.
func (h *PubSubHandler) handleMessage(ctx context.Context, id string, published time.Time, data []byte) bool {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", id).
		Str("publish_time", published.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.jobs.Handle(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed successfully")
		return true
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Err(err).Msg("dropping message")
		return true
	case isDecodeError(err):
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	default:
		logger.Error().Err(err).Msg("job failed")
		return false
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
