package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/provider/resilience"
	"github.com/commutetimely/leavetime/internal/snapshot"
)

// SnapshotCache is the fused-snapshot cache of the recommendation pipeline.
type SnapshotCache interface {
	CacheStats() snapshot.CacheStats
	InvalidateCache()
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	snapshots SnapshotCache
	ready     func(ctx context.Context) error
	now       func() time.Time
}

// OpsHandlerConfig configures an OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Registry reports provider circuit state. Optional.
	Registry *resilience.Registry

	// Snapshots exposes the snapshot cache to admins. Optional.
	Snapshots SnapshotCache

	// Ready checks dependencies such as the database. Optional.
	Ready func(ctx context.Context) error

	Now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		snapshots: cfg.Snapshots,
		ready:     cfg.Ready,
		now:       cfg.Now,
	}
}

// HealthCheck handles GET /health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /ready - dependency check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details = map[string]any{"error": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ProviderHealth handles GET /v1/health/providers - provider circuit state.
// The overall status is the worst provider status. Providers failing does
// not make the service unavailable, since recommendations fall back to
// estimates.
func (h *OpsHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	out := models.ProviderHealth{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}
	if h.registry == nil {
		response.JSON(w, r, http.StatusOK, out)
		return
	}

	all := h.registry.AllHealth()
	out.Status = healthStatus[resilience.Worst(all)]
	for _, ph := range all {
		ps := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              healthStatus[ph.Level()],
			CircuitState:        ph.CircuitState.String(),
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out.Providers = append(out.Providers, ps)
	}
	response.JSON(w, r, http.StatusOK, out)
}

// SnapshotCacheStats handles GET /v1/admin/snapshot-cache.
func (h *OpsHandler) SnapshotCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		response.NotFound(w, r, "snapshot cache not configured")
		return
	}
	stats := h.snapshots.CacheStats()
	response.JSON(w, r, http.StatusOK, models.SnapshotCacheStats{
		Entries: stats.Entries,
		Hits:    stats.Hits,
		Misses:  stats.Misses,
		Time:    models.Timestamp(h.now()),
	})
}

// InvalidateSnapshotCache handles DELETE /v1/admin/snapshot-cache. The next
// recommendation for every trip refetches route and weather.
func (h *OpsHandler) InvalidateSnapshotCache(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		response.NotFound(w, r, "snapshot cache not configured")
		return
	}
	h.snapshots.InvalidateCache()
	response.NoContent(w, r)
}

var healthStatus = map[string]models.HealthStatus{
	resilience.HealthOK:       models.HealthStatusOK,
	resilience.HealthDegraded: models.HealthStatusDegraded,
	resilience.HealthFailing:  models.HealthStatusFail,
}
