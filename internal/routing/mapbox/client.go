// Package mapbox provides a traffic-aware route adapter backed by the Mapbox
// Directions API (driving-traffic profile).
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/provider/resilience"
	"github.com/commutetimely/leavetime/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "mapbox"

	// DefaultBaseURL is the Mapbox API base URL.
	DefaultBaseURL = "https://api.mapbox.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	profile = "mapbox/driving-traffic"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Mapbox client.
type ClientConfig struct {
	// AccessToken is the Mapbox access token (required).
	AccessToken string

	// BaseURL is the API base URL (optional, defaults to the Mapbox API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Reporter receives negative distances or durations before they are clamped.
	Reporter faults.Reporter

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Mapbox Directions API client.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  HTTPDoer
	reporter    faults.Reporter
	logger      zerolog.Logger
	now         func() time.Time
}

// NewClient creates a new Mapbox client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		httpClient:  httpClient,
		reporter:    cfg.Reporter,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Route retrieves the traffic-adjusted route between two points.
func (c *Client) Route(ctx context.Context, origin, destination geo.Coordinate) (routing.RouteSnapshot, error) {
	if err := origin.Validate(); err != nil {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	if err := destination.Validate(); err != nil {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	// Mapbox uses lon,lat order.
	coords := fmt.Sprintf("%f,%f;%f,%f", origin.Lon, origin.Lat, destination.Lon, destination.Lat)
	query := url.Values{}
	query.Set("alternatives", "true")
	query.Set("overview", "false")
	query.Set("steps", "false")
	query.Set("access_token", c.accessToken)
	reqURL := fmt.Sprintf("%s/directions/v5/%s/%s?%s", c.baseURL, profile, coords, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return routing.RouteSnapshot{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", destination.Lat).
		Float64("dest_lon", destination.Lon).
		Msg("requesting directions from Mapbox")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "failed to read routing response",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return routing.RouteSnapshot{}, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var dirResp directionsResponse
	if err := json.Unmarshal(respBody, &dirResp); err != nil {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "failed to decode routing response",
			Err:      fmt.Errorf("%w: %w", routing.ErrMalformedResponse, err),
		}
	}

	if dirResp.Code != codeOk || len(dirResp.Routes) == 0 {
		return routing.RouteSnapshot{}, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	}

	snap := c.toSnapshot(ctx, &dirResp)

	c.logger.Debug().
		Float64("distance_m", snap.DistanceMeters).
		Float64("traffic_s", snap.TrafficDurationSeconds).
		Str("congestion", snap.Congestion.String()).
		Int("alternatives", len(snap.Alternatives)).
		Msg("received directions from Mapbox")

	return snap, nil
}

// handleErrorResponse maps Mapbox error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var mbErr errorResponse
	_ = json.Unmarshal(body, &mbErr) //nolint:errcheck // message is best effort

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "UNAUTHORIZED",
			Message:  "API access denied - check access token configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case statusCode == http.StatusNotFound:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      routing.ErrNoRouteFound,
		}
	case statusCode == http.StatusUnprocessableEntity || statusCode == http.StatusBadRequest:
		if mbErr.Code == codeNoRoute || mbErr.Code == codeNoSegment {
			return &routing.Error{
				Provider: ProviderName,
				Code:     "NO_ROUTE",
				Message:  mbErr.Message,
				Err:      routing.ErrNoRouteFound,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  mbErr.Message,
			Err:      routing.ErrInvalidCoordinates,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// toSnapshot converts the primary route and its alternatives to the domain model.
func (c *Client) toSnapshot(ctx context.Context, resp *directionsResponse) routing.RouteSnapshot {
	primary := &resp.Routes[0]

	distance := faults.ClampNonNegative(ctx, c.reporter, ProviderName, "distance", primary.Distance)
	traffic := faults.ClampNonNegative(ctx, c.reporter, ProviderName, "duration", primary.Duration)
	baseline := traffic
	if primary.DurationTypical != nil {
		baseline = faults.ClampNonNegative(ctx, c.reporter, ProviderName, "duration_typical", *primary.DurationTypical)
	}

	congestion := routing.CongestionNone
	if baseline > 0 {
		congestion = routing.CongestionFromRatio(traffic / baseline)
	}

	snap := routing.RouteSnapshot{
		DistanceMeters:          distance,
		BaselineDurationSeconds: baseline,
		TrafficDurationSeconds:  traffic,
		Congestion:              congestion,
		CapturedAt:              c.now(),
	}

	for i := 1; i < len(resp.Routes) && len(snap.Alternatives) < routing.MaxAlternatives; i++ {
		alt := &resp.Routes[i]
		snap.Alternatives = append(snap.Alternatives, routing.AlternativeRoute{
			DurationSeconds: faults.ClampNonNegative(ctx, c.reporter, ProviderName, "alternative_duration", alt.Duration),
			Name:            legSummary(alt.Legs),
		})
	}

	return snap
}

// legSummary returns the first non-empty leg summary, which names the main roads.
func legSummary(legs []routeLeg) string {
	for _, leg := range legs {
		if leg.Summary != "" {
			return leg.Summary
		}
	}
	return ""
}
