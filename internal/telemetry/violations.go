package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/commutetimely/leavetime/internal/faults"
)

// ViolationReporter logs invariant violations and counts them.
type ViolationReporter struct {
	logger  zerolog.Logger
	counter metric.Int64Counter
}

// NewViolationReporter creates a reporter backed by the global meter.
func NewViolationReporter(logger zerolog.Logger) (*ViolationReporter, error) {
	counter, err := otel.Meter(meterName).Int64Counter(
		"invariant.violation.total",
		metric.WithDescription("Out-of-range values received from collaborators"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, err
	}
	return &ViolationReporter{logger: logger, counter: counter}, nil
}

// ReportViolation implements faults.Reporter.
func (r *ViolationReporter) ReportViolation(ctx context.Context, v *faults.InvariantViolation) {
	r.logger.Error().
		Err(v).
		Str("component", v.Component).
		Str("field", v.Field).
		Float64("value", v.Value).
		Msg("invariant violation")

	r.counter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("component", v.Component),
		attribute.String("field", v.Field),
	))
}

var _ faults.Reporter = (*ViolationReporter)(nil)
