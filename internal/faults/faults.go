// Package faults defines the error taxonomy shared by the leave-time pipeline:
// adapter failures absorbed by fallbacks, scheduling failures retried on the next
// trigger, and invariant violations that are reported and clamped.
package faults

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAdapterFailure marks network, timeout and parse failures from external adapters.
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrSchedulingFailure marks a notification center refusing a request.
	ErrSchedulingFailure = errors.New("scheduling failure")

	// ErrInvariantViolation marks a value that broke a data-model invariant.
	ErrInvariantViolation = errors.New("invariant violation")
)

// InvariantViolation describes an out-of-range value received from a collaborator.
type InvariantViolation struct {
	Component string
	Field     string
	Value     float64
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s has invalid value %v", v.Component, v.Field, v.Value)
}

func (v *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// Reporter receives invariant violations.
type Reporter interface {
	ReportViolation(ctx context.Context, v *InvariantViolation)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, v *InvariantViolation)

// ReportViolation calls f.
func (f ReporterFunc) ReportViolation(ctx context.Context, v *InvariantViolation) {
	f(ctx, v)
}

// ClampNonNegative returns value, or zero after reporting a violation when value < 0.
func ClampNonNegative(ctx context.Context, r Reporter, component, field string, value float64) float64 {
	if value >= 0 {
		return value
	}
	if r != nil {
		r.ReportViolation(ctx, &InvariantViolation{Component: component, Field: field, Value: value})
	}
	return 0
}

// ClampRange returns value limited to [lo, hi], reporting a violation when it was outside.
func ClampRange(ctx context.Context, r Reporter, component, field string, value, lo, hi float64) float64 {
	if value >= lo && value <= hi {
		return value
	}
	if r != nil {
		r.ReportViolation(ctx, &InvariantViolation{Component: component, Field: field, Value: value})
	}
	if value < lo {
		return lo
	}
	return hi
}
