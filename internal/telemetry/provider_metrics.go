package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/commutetimely/leavetime/internal/telemetry"

// ProviderMetrics holds metrics for external provider calls and the snapshot cache.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewProviderMetrics registers the adapter and cache instruments.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	var m ProviderMetrics
	var errs [4]error
	m.requestDuration, errs[0] = meter.Float64Histogram("provider.request.duration",
		metric.WithDescription("Latency of routing, weather and model calls"), metric.WithUnit("s"))
	m.requestTotal, errs[1] = meter.Int64Counter("provider.request.total",
		metric.WithDescription("Calls made to external providers"), metric.WithUnit("{request}"))
	m.cacheHit, errs[2] = meter.Int64Counter("provider.cache.hit",
		metric.WithDescription("Snapshot cache hits"), metric.WithUnit("{hit}"))
	m.cacheMiss, errs[3] = meter.Int64Counter("provider.cache.miss",
		metric.WithDescription("Snapshot cache misses"), metric.WithUnit("{miss}"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("create provider metrics: %w", err)
	}
	return &m, nil
}

// RecordRequest records metrics for a provider request.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Recorded after the request context may already be done.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit.
func (m *ProviderMetrics) RecordCacheHit(cache string) {
	m.cacheHit.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}

// RecordCacheMiss records a cache miss.
func (m *ProviderMetrics) RecordCacheMiss(cache string) {
	m.cacheMiss.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}
