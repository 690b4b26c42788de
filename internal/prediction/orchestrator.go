package prediction

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
)

const (
	// DefaultRemoteTimeout bounds a remote prediction call.
	DefaultRemoteTimeout = 10 * time.Second

	// LocalConfidenceCap is the highest confidence the local heuristic reports.
	LocalConfidenceCap = 0.75

	// MinLocalBufferMinutes is the smallest buffer reported by the local heuristic.
	MinLocalBufferMinutes = 5

	alternativeShift     = 10 * time.Minute
	probabilityPerMinute = 0.015
	estimatedHedge       = "(estimated: live data unavailable)"
	component            = "prediction"
)

// Config configures the orchestrator.
type Config struct {
	Snapshots SnapshotSource

	// Remote is optional. When nil the local heuristic is always used.
	Remote RemotePredictor

	// RemoteDisabled is an optional kill switch for the remote model.
	RemoteDisabled func(ctx context.Context) bool

	RemoteTimeout time.Duration
	Reporter      faults.Reporter
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Orchestrator produces recommendations.
type Orchestrator struct {
	snapshots      SnapshotSource
	remote         RemotePredictor
	remoteDisabled func(ctx context.Context) bool
	remoteTimeout  time.Duration
	reporter       faults.Reporter
	logger         zerolog.Logger
	now            func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.RemoteTimeout == 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		snapshots:      cfg.Snapshots,
		remote:         cfg.Remote,
		remoteDisabled: cfg.RemoteDisabled,
		remoteTimeout:  cfg.RemoteTimeout,
		reporter:       cfg.Reporter,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
}

// Recommend returns a leave-time recommendation. It never fails: when the
// remote model is unavailable the local heuristic is used.
func (o *Orchestrator) Recommend(ctx context.Context, origin, destination geo.Coordinate, arrival time.Time, userBufferMinutes int) Recommendation {
	userBufferMinutes = int(faults.ClampNonNegative(ctx, o.reporter, component, "userBufferMinutes", float64(userBufferMinutes)))

	snap := o.snapshots.Snapshot(ctx, origin, destination, arrival)

	pred, ok := o.predictRemote(ctx, RemoteRequest{
		Origin:            origin,
		Destination:       destination,
		ArrivalTime:       arrival,
		CurrentTime:       o.now(),
		Snapshot:          snap,
		UserBufferMinutes: userBufferMinutes,
	})
	if !ok {
		pred = o.predictLocal(snap.Route.TrafficDurationSeconds, snap.HeuristicDelaySeconds, snap.Confidence, arrival, userBufferMinutes)
		pred.Explanation = localExplanation(snap.Route.TrafficDurationSeconds, snap.HeuristicDelaySeconds, snap.Route.Congestion.Descriptor(), userBufferMinutes)
	}
	if snap.UsedFallback() {
		pred.Explanation += " " + estimatedHedge
	}

	return Recommendation{
		Prediction:            pred,
		Snapshot:              snap,
		WeatherPenaltyMinutes: snap.HeuristicDelaySeconds / 60,
		UserBufferMinutes:     userBufferMinutes,
	}
}

func (o *Orchestrator) predictRemote(ctx context.Context, req RemoteRequest) (Prediction, bool) {
	if o.remote == nil {
		return Prediction{}, false
	}
	if o.remoteDisabled != nil && o.remoteDisabled(ctx) {
		o.logger.Debug().Msg("remote prediction disabled, using local heuristic")
		return Prediction{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, o.remoteTimeout)
	defer cancel()

	pred, err := o.remote.Predict(ctx, req)
	if err != nil {
		o.logger.Warn().Err(err).Msg("remote prediction failed, using local heuristic")
		return Prediction{}, false
	}

	pred.Source = SourceRemoteModel
	if pred.PredictedAt.IsZero() {
		pred.PredictedAt = o.now()
	}
	return pred, true
}

// predictLocal computes the heuristic prediction:
// leave = arrival - (traffic + weather delay + user buffer).
func (o *Orchestrator) predictLocal(trafficSeconds, delaySeconds, snapshotConfidence float64, arrival time.Time, userBufferMinutes int) Prediction {
	total := trafficSeconds + delaySeconds + float64(userBufferMinutes*60)
	leave := arrival.Add(-time.Duration(total * float64(time.Second)))
	confidence := math.Min(snapshotConfidence, LocalConfidenceCap)

	bufferMinutes := int(delaySeconds / 60)
	if bufferMinutes < MinLocalBufferMinutes {
		bufferMinutes = MinLocalBufferMinutes
	}

	return Prediction{
		LeaveTime:     leave,
		Confidence:    confidence,
		Alternatives:  localAlternatives(leave, confidence),
		BufferMinutes: bufferMinutes,
		Source:        SourceLocalHeuristic,
		PredictedAt:   o.now(),
	}
}

// localAlternatives returns an earlier and a tighter leave time. Probability
// is monotonic in the buffer gained or lost.
func localAlternatives(leave time.Time, confidence float64) []AlternativeLeaveTime {
	shift := alternativeShift.Minutes()
	return []AlternativeLeaveTime{
		{
			LeaveTime:          leave.Add(-alternativeShift),
			ArrivalProbability: clamp01(confidence + probabilityPerMinute*shift),
			Description:        fmt.Sprintf("Leave %d min earlier for extra margin", int(shift)),
		},
		{
			LeaveTime:          leave.Add(alternativeShift),
			ArrivalProbability: clamp01(confidence - probabilityPerMinute*shift),
			Description:        fmt.Sprintf("Leave %d min later with a tighter margin", int(shift)),
		},
	}
}

func localExplanation(trafficSeconds, delaySeconds float64, trafficDescriptor string, userBufferMinutes int) string {
	parts := []string{
		fmt.Sprintf("%d min travel", int(math.Round(trafficSeconds/60))),
		trafficDescriptor,
	}
	if delay := int(math.Round(delaySeconds / 60)); delay > 0 {
		parts = append(parts, fmt.Sprintf("+%d min weather delay", delay))
	}
	parts = append(parts, fmt.Sprintf("%d min buffer", userBufferMinutes))
	return strings.Join(parts, ", ")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
