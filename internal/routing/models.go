// Package routing defines the traffic-aware route adapter consumed by the
// snapshot fusion service.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrMalformedResponse indicates the provider answered with a body that could not be parsed.
	ErrMalformedResponse = errors.New("malformed routing response")
)

// MaxAlternatives is the number of alternative routes kept on a snapshot.
const MaxAlternatives = 2

// Provider fetches a traffic-adjusted route between two points.
type Provider interface {
	// Route returns the primary route and up to MaxAlternatives alternatives.
	Route(ctx context.Context, origin, destination geo.Coordinate) (RouteSnapshot, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// CongestionLevel is an ordered traffic severity classification.
type CongestionLevel int

const (
	CongestionNone CongestionLevel = iota
	CongestionLow
	CongestionModerate
	CongestionHeavy
	CongestionSevere
)

var congestionNames = [...]string{"none", "low", "moderate", "heavy", "severe"}

func (l CongestionLevel) String() string {
	if l < CongestionNone || l > CongestionSevere {
		return "unknown"
	}
	return congestionNames[l]
}

var congestionDescriptors = [...]string{"clear roads", "light traffic", "moderate traffic", "heavy traffic", "severe traffic"}

// Descriptor returns the phrase used in explanation text, e.g. "heavy traffic".
func (l CongestionLevel) Descriptor() string {
	return congestionDescriptors[l.Clamp()]
}

// Clamp limits l to the defined range.
func (l CongestionLevel) Clamp() CongestionLevel {
	if l < CongestionNone {
		return CongestionNone
	}
	if l > CongestionSevere {
		return CongestionSevere
	}
	return l
}

// ParseCongestionLevel converts a level name back to its value.
func ParseCongestionLevel(s string) (CongestionLevel, bool) {
	for i, name := range congestionNames {
		if name == s {
			return CongestionLevel(i), true
		}
	}
	return CongestionNone, false
}

// CongestionFromRatio classifies the ratio of traffic-adjusted to typical duration.
func CongestionFromRatio(ratio float64) CongestionLevel {
	switch {
	case ratio <= 1.05:
		return CongestionNone
	case ratio <= 1.15:
		return CongestionLow
	case ratio <= 1.30:
		return CongestionModerate
	case ratio <= 1.50:
		return CongestionHeavy
	default:
		return CongestionSevere
	}
}

// AlternativeRoute is a secondary route option.
type AlternativeRoute struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Name            string  `json:"name,omitempty"`
}

// RouteSnapshot is the route state captured for one origin/destination pair.
type RouteSnapshot struct {
	DistanceMeters          float64            `json:"distanceMeters"`
	BaselineDurationSeconds float64            `json:"baselineDurationSeconds"`
	TrafficDurationSeconds  float64            `json:"trafficDurationSeconds"`
	Congestion              CongestionLevel    `json:"congestion"`
	Alternatives            []AlternativeRoute `json:"alternatives,omitempty"`
	CapturedAt              time.Time          `json:"capturedAt"`
}

// TrafficDelaySeconds returns the extra time caused by current traffic.
func (r RouteSnapshot) TrafficDelaySeconds() float64 {
	if d := r.TrafficDurationSeconds - r.BaselineDurationSeconds; d > 0 {
		return d
	}
	return 0
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports every routing error as an adapter failure.
func (e *Error) Is(target error) bool {
	return target == faults.ErrAdapterFailure
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
