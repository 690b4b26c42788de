package prediction_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/routing"
	"github.com/commutetimely/leavetime/internal/snapshot"
	"github.com/commutetimely/leavetime/internal/weather"
)

var (
	home    = geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
	office  = geo.Coordinate{Lat: 52.3105, Lon: 4.7683}
	now     = time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	arrival = now.Add(time.Hour)
)

type stubSnapshots struct {
	snap snapshot.TrafficWeatherSnapshot
}

func (s stubSnapshots) Snapshot(context.Context, geo.Coordinate, geo.Coordinate, time.Time) snapshot.TrafficWeatherSnapshot {
	return s.snap
}

type stubRemote struct {
	calls atomic.Int32
	pred  prediction.Prediction
	err   error
	block bool
}

func (r *stubRemote) Predict(ctx context.Context, _ prediction.RemoteRequest) (prediction.Prediction, error) {
	r.calls.Add(1)
	if r.block {
		<-ctx.Done()
		return prediction.Prediction{}, ctx.Err()
	}
	return r.pred, r.err
}

func cleanSnapshot() snapshot.TrafficWeatherSnapshot {
	return snapshot.TrafficWeatherSnapshot{
		Route: routing.RouteSnapshot{
			DistanceMeters:          18000,
			BaselineDurationSeconds: 1200,
			TrafficDurationSeconds:  1500,
			Congestion:              routing.CongestionModerate,
			CapturedAt:              now,
		},
		Weather: weather.WeatherSnapshot{
			Condition:                weather.ConditionClear,
			PrecipitationProbability: 5,
			VisibilityKm:             10,
			CapturedAt:               now,
		},
		Confidence:  0.9,
		GeneratedAt: now,
	}
}

func newOrchestrator(snap snapshot.TrafficWeatherSnapshot, remote prediction.RemotePredictor) *prediction.Orchestrator {
	return prediction.NewOrchestrator(prediction.Config{
		Snapshots: stubSnapshots{snap: snap},
		Remote:    remote,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
}

func TestRecommend_CleanPathLocal(t *testing.T) {
	rec := newOrchestrator(cleanSnapshot(), nil).Recommend(context.Background(), home, office, arrival, 10)
	pred := rec.Prediction

	assert.Equal(t, prediction.SourceLocalHeuristic, pred.Source)
	assert.Equal(t, arrival.Add(-35*time.Minute), pred.LeaveTime)
	assert.InDelta(t, 0.75, pred.Confidence, 1e-9)
	assert.Equal(t, 5, pred.BufferMinutes)
	assert.Equal(t, "25 min travel, moderate traffic, 10 min buffer", pred.Explanation)
	assert.Equal(t, now, pred.PredictedAt)
	assert.Zero(t, rec.WeatherPenaltyMinutes)
	assert.Equal(t, 10, rec.UserBufferMinutes)

	require.Len(t, pred.Alternatives, 2)
	earlier, tighter := pred.Alternatives[0], pred.Alternatives[1]
	assert.Equal(t, pred.LeaveTime.Add(-10*time.Minute), earlier.LeaveTime)
	assert.InDelta(t, 0.90, earlier.ArrivalProbability, 1e-9)
	assert.Equal(t, pred.LeaveTime.Add(10*time.Minute), tighter.LeaveTime)
	assert.InDelta(t, 0.60, tighter.ArrivalProbability, 1e-9)
	assert.Greater(t, earlier.ArrivalProbability, tighter.ArrivalProbability)
}

func TestRecommend_HeavyRainLocal(t *testing.T) {
	snap := cleanSnapshot()
	snap.Weather.Condition = weather.ConditionRain
	snap.Weather.PrecipitationProbability = 85
	snap.Weather.VisibilityKm = 3
	snap.HeuristicDelaySeconds = snapshot.HeuristicDelaySeconds(snap.Weather)
	require.Equal(t, 540.0, snap.HeuristicDelaySeconds)

	rec := newOrchestrator(snap, nil).Recommend(context.Background(), home, office, arrival, 10)
	pred := rec.Prediction

	assert.Equal(t, arrival.Add(-(1500+540+600)*time.Second), pred.LeaveTime)
	assert.Equal(t, 9, pred.BufferMinutes)
	assert.InDelta(t, 9.0, rec.WeatherPenaltyMinutes, 1e-9)
	assert.Equal(t, "25 min travel, moderate traffic, +9 min weather delay, 10 min buffer", pred.Explanation)
}

func TestRecommend_TotalFailureIsHedged(t *testing.T) {
	snapshots := snapshot.NewService(snapshot.Config{
		Logger:   zerolog.Nop(),
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	orch := prediction.NewOrchestrator(prediction.Config{
		Snapshots: snapshots,
		Remote:    &stubRemote{err: errors.New("connection refused")},
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	rec := orch.Recommend(context.Background(), home, office, arrival, 0)

	assert.Equal(t, prediction.SourceLocalHeuristic, rec.Prediction.Source)
	assert.LessOrEqual(t, rec.Prediction.Confidence, 0.5)
	assert.True(t, strings.HasSuffix(rec.Prediction.Explanation, "(estimated: live data unavailable)"))
	assert.Contains(t, rec.Prediction.Explanation, "heavy traffic", "08:00 arrival is in the morning peak")
	assert.True(t, rec.Prediction.LeaveTime.Before(arrival))
}

func TestRecommend_RemotePreferred(t *testing.T) {
	remote := &stubRemote{pred: prediction.Prediction{
		LeaveTime:     arrival.Add(-42 * time.Minute),
		Confidence:    0.45,
		Explanation:   "28 min travel, moderate traffic, 9 min buffer",
		BufferMinutes: 9,
	}}

	rec := newOrchestrator(cleanSnapshot(), remote).Recommend(context.Background(), home, office, arrival, 10)

	assert.Equal(t, int32(1), remote.calls.Load())
	assert.Equal(t, prediction.SourceRemoteModel, rec.Prediction.Source)
	assert.Equal(t, arrival.Add(-42*time.Minute), rec.Prediction.LeaveTime)
	assert.InDelta(t, 0.45, rec.Prediction.Confidence, 1e-9, "no confidence floor on remote results")
	assert.Equal(t, now, rec.Prediction.PredictedAt)
}

func TestRecommend_RemoteFailureFallsBack(t *testing.T) {
	remote := &stubRemote{err: &prediction.RemoteError{Kind: prediction.RemoteErrorNetwork, StatusCode: 503}}

	rec := newOrchestrator(cleanSnapshot(), remote).Recommend(context.Background(), home, office, arrival, 10)

	assert.Equal(t, prediction.SourceLocalHeuristic, rec.Prediction.Source)
	assert.Equal(t, arrival.Add(-35*time.Minute), rec.Prediction.LeaveTime)
}

func TestRecommend_RemoteTimeout(t *testing.T) {
	remote := &stubRemote{block: true}
	orch := prediction.NewOrchestrator(prediction.Config{
		Snapshots:     stubSnapshots{snap: cleanSnapshot()},
		Remote:        remote,
		RemoteTimeout: 20 * time.Millisecond,
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return now },
	})

	start := time.Now()
	rec := orch.Recommend(context.Background(), home, office, arrival, 10)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, prediction.SourceLocalHeuristic, rec.Prediction.Source)
}

func TestRecommend_RemoteKillSwitch(t *testing.T) {
	remote := &stubRemote{pred: prediction.Prediction{LeaveTime: arrival.Add(-time.Hour)}}
	orch := prediction.NewOrchestrator(prediction.Config{
		Snapshots:      stubSnapshots{snap: cleanSnapshot()},
		Remote:         remote,
		RemoteDisabled: func(context.Context) bool { return true },
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return now },
	})

	rec := orch.Recommend(context.Background(), home, office, arrival, 10)

	assert.Zero(t, remote.calls.Load())
	assert.Equal(t, prediction.SourceLocalHeuristic, rec.Prediction.Source)
}

func TestRecommend_NegativeBufferIsReportedAndClamped(t *testing.T) {
	var reported atomic.Int32
	orch := prediction.NewOrchestrator(prediction.Config{
		Snapshots: stubSnapshots{snap: cleanSnapshot()},
		Reporter: faults.ReporterFunc(func(_ context.Context, v *faults.InvariantViolation) {
			reported.Add(1)
			assert.Equal(t, "userBufferMinutes", v.Field)
		}),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	rec := orch.Recommend(context.Background(), home, office, arrival, -5)

	assert.Equal(t, int32(1), reported.Load())
	assert.Zero(t, rec.UserBufferMinutes)
	assert.Equal(t, arrival.Add(-25*time.Minute), rec.Prediction.LeaveTime)
}

func TestRemoteError(t *testing.T) {
	err := &prediction.RemoteError{Kind: prediction.RemoteErrorValidation, StatusCode: 400, Message: "missing origin"}

	assert.Equal(t, "remote prediction validation error (status 400): missing origin", err.Error())
	assert.ErrorIs(t, err, faults.ErrAdapterFailure)
}
