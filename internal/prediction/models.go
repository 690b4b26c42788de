// Package prediction turns a fused snapshot into a leave-time recommendation,
// preferring the remote model and falling back to a local heuristic.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/snapshot"
)

// Source identifies which path produced a prediction.
type Source string

const (
	SourceRemoteModel    Source = "remoteModel"
	SourceLocalHeuristic Source = "localHeuristic"
)

// AlternativeLeaveTime is another leave time with its arrival probability.
type AlternativeLeaveTime struct {
	LeaveTime          time.Time `json:"leaveTime"`
	ArrivalProbability float64   `json:"arrivalProbability"`
	Description        string    `json:"description"`
}

// Prediction is a recommended leave time.
type Prediction struct {
	LeaveTime     time.Time              `json:"leaveTime"`
	Confidence    float64                `json:"confidence"`
	Explanation   string                 `json:"explanation"`
	Alternatives  []AlternativeLeaveTime `json:"alternatives"`
	BufferMinutes int                    `json:"bufferMinutes"`
	Source        Source                 `json:"source"`
	PredictedAt   time.Time              `json:"predictedAt"`
}

// Recommendation bundles a prediction with the snapshot it was derived from.
// It is a value; callers must not mutate the slices it holds.
type Recommendation struct {
	Prediction            Prediction                      `json:"prediction"`
	Snapshot              snapshot.TrafficWeatherSnapshot `json:"snapshot"`
	WeatherPenaltyMinutes float64                         `json:"weatherPenaltyMinutes"`
	UserBufferMinutes     int                             `json:"userBufferMinutes"`
}

// RemoteRequest carries the inputs of a remote prediction.
type RemoteRequest struct {
	Origin            geo.Coordinate
	Destination       geo.Coordinate
	ArrivalTime       time.Time
	CurrentTime       time.Time
	Snapshot          snapshot.TrafficWeatherSnapshot
	UserBufferMinutes int
}

// RemotePredictor calls the remote prediction model.
type RemotePredictor interface {
	Predict(ctx context.Context, req RemoteRequest) (Prediction, error)
}

// SnapshotSource produces fused snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time) snapshot.TrafficWeatherSnapshot
}

// RemoteErrorKind classifies remote prediction failures.
type RemoteErrorKind string

const (
	RemoteErrorValidation RemoteErrorKind = "validation"
	RemoteErrorNetwork    RemoteErrorKind = "network"
	RemoteErrorDecode     RemoteErrorKind = "decode"
)

// ErrRemoteUnavailable is returned when the remote model cannot be reached.
var ErrRemoteUnavailable = errors.New("remote prediction unavailable")

// RemoteError is a failure of the remote prediction adapter.
type RemoteError struct {
	Kind       RemoteErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remote prediction %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is reports adapter failures so callers can match faults.ErrAdapterFailure.
func (e *RemoteError) Is(target error) bool {
	return target == faults.ErrAdapterFailure
}
