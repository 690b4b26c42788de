package scheduler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/commutetimely/leavetime/internal/scheduler"

type passMetrics struct {
	passes   metric.Int64Counter
	duration metric.Float64Histogram
}

func newPassMetrics() (*passMetrics, error) {
	meter := otel.Meter(meterName)

	passes, err := meter.Int64Counter(
		"scheduler.pass.total",
		metric.WithDescription("Scheduling passes by trigger and result"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"scheduler.pass.duration",
		metric.WithDescription("Duration of scheduling passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &passMetrics{passes: passes, duration: duration}, nil
}

func (m *passMetrics) record(o Outcome) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", o.Trigger.String()),
		attribute.String("result", string(o.Result)),
	)
	ctx := context.Background()
	m.passes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, o.Duration.Seconds(), attrs)
}
