package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/scheduler"
)

// ErrWakeInProgress is returned when a wake is requested while one runs.
var ErrWakeInProgress = errors.New("periodic wake already running")

// Waker queues a pass for every active trip and waits for them.
type Waker interface {
	PeriodicWake(ctx context.Context) (int, error)
	Wait(ctx context.Context) error
}

// WakeJobConfig holds configuration for creating a WakeJob.
type WakeJobConfig struct {
	Coordinator Waker

	// Timeout bounds how long Run waits for the queued passes.
	// Default: 2 minutes
	Timeout time.Duration

	Logger zerolog.Logger
}

// WakeJob runs the periodic wake.
type WakeJob struct {
	coordinator Waker
	timeout     time.Duration
	logger      zerolog.Logger
	running     atomic.Bool

	// Outcome counters for passes started by a periodic wake.
	scheduled atomic.Int64
	unchanged atomic.Int64
	cancelled atomic.Int64
	failed    atomic.Int64

	metrics *WakeMetrics
}

// WakeMetrics tracks wake job statistics.
type WakeMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	FailedRuns     int64
	TimedOutRuns   int64
	TripsQueued    int64
	TripsScheduled int64
	TripsFailed    int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// WakeResult contains the result of one wake.
type WakeResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Queued    int
	Scheduled int
	Unchanged int
	Cancelled int
	Failed    int
	TimedOut  bool
	Err       error
}

// NewWakeJob creates a new wake job.
func NewWakeJob(cfg WakeJobConfig) *WakeJob {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &WakeJob{
		coordinator: cfg.Coordinator,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
		metrics:     &WakeMetrics{},
	}
}

// RecordOutcome counts a finished pass. Wire it to the coordinator's
// OnOutcome hook; only periodic-wake passes are counted.
func (j *WakeJob) RecordOutcome(o scheduler.Outcome) {
	if o.Trigger != scheduler.TriggerPeriodicWake {
		return
	}
	switch o.Result {
	case scheduler.ResultScheduled:
		j.scheduled.Add(1)
	case scheduler.ResultUnchanged:
		j.unchanged.Add(1)
	case scheduler.ResultCancelled:
		j.cancelled.Add(1)
	case scheduler.ResultFailed:
		j.failed.Add(1)
	}
}

// Run queues every active trip and waits for the passes to finish.
func (j *WakeJob) Run(ctx context.Context) *WakeResult {
	start := time.Now()
	result := &WakeResult{StartTime: start}

	if !j.running.CompareAndSwap(false, true) {
		result.Err = ErrWakeInProgress
		return result
	}
	defer j.running.Store(false)

	before := j.counts()

	queued, err := j.coordinator.PeriodicWake(ctx)
	result.Queued = queued
	if err != nil {
		result.Err = err
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, j.timeout)
		if err := j.coordinator.Wait(waitCtx); err != nil {
			result.TimedOut = true
		}
		cancel()
	}

	after := j.counts()
	result.Scheduled = int(after[0] - before[0])
	result.Unchanged = int(after[1] - before[1])
	result.Cancelled = int(after[2] - before[2])
	result.Failed = int(after[3] - before[3])
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)

	j.updateMetrics(result)

	event := j.logger.Info()
	if result.Err != nil {
		event = j.logger.Error().Err(result.Err)
	}
	event.
		Dur("duration", result.Duration).
		Int("queued", result.Queued).
		Int("scheduled", result.Scheduled).
		Int("unchanged", result.Unchanged).
		Int("cancelled", result.Cancelled).
		Int("failed", result.Failed).
		Bool("timed_out", result.TimedOut).
		Msg("periodic wake completed")

	return result
}

// RunEvery runs the wake on a ticker until ctx is cancelled. A tick that
// lands while a wake is running is skipped.
func (j *WakeJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res := j.Run(ctx); errors.Is(res.Err, ErrWakeInProgress) {
				j.logger.Debug().Msg("skipping tick, wake in progress")
			}
		}
	}
}

func (j *WakeJob) counts() [4]int64 {
	return [4]int64{j.scheduled.Load(), j.unchanged.Load(), j.cancelled.Load(), j.failed.Load()}
}

func (j *WakeJob) updateMetrics(r *WakeResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if r.Err != nil {
		j.metrics.FailedRuns++
	}
	if r.TimedOut {
		j.metrics.TimedOutRuns++
	}
	j.metrics.TripsQueued += int64(r.Queued)
	j.metrics.TripsScheduled += int64(r.Scheduled)
	j.metrics.TripsFailed += int64(r.Failed)
	j.metrics.LastRunAt = r.EndTime
	j.metrics.LastRunDuration = r.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WakeJob) GetMetrics() WakeMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WakeMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		FailedRuns:      j.metrics.FailedRuns,
		TimedOutRuns:    j.metrics.TimedOutRuns,
		TripsQueued:     j.metrics.TripsQueued,
		TripsScheduled:  j.metrics.TripsScheduled,
		TripsFailed:     j.metrics.TripsFailed,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for the health endpoint.
func (j *WakeJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"timed_out_runs":    m.TimedOutRuns,
		"trips_queued":      m.TripsQueued,
		"trips_scheduled":   m.TripsScheduled,
		"trips_failed":      m.TripsFailed,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
	}
}
