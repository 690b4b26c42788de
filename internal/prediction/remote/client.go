// Package remote calls the scoring model over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/prediction"
	"github.com/commutetimely/leavetime/internal/provider/resilience"
	"github.com/commutetimely/leavetime/internal/scoring"
)

const (
	// ProviderName identifies the remote model in the provider registry.
	ProviderName = "prediction"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	predictPath  = "/v1/predict"
	maxErrorBody = 512
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the remote prediction client.
type ClientConfig struct {
	// BaseURL is the scoring service base URL (required).
	BaseURL string

	// APIKey is sent in the X-API-Key header when set.
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client calls POST {base}/v1/predict.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a remote prediction client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 1
		clientCfg.Registry = cfg.Registry
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Predict implements prediction.RemotePredictor.
func (c *Client) Predict(ctx context.Context, req prediction.RemoteRequest) (prediction.Prediction, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return prediction.Prediction{}, &prediction.RemoteError{Kind: prediction.RemoteErrorValidation, Message: "encoding request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return prediction.Prediction{}, &prediction.RemoteError{Kind: prediction.RemoteErrorValidation, Message: "creating request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind: prediction.RemoteErrorNetwork,
			Err:  fmt.Errorf("%w: %w", prediction.ErrRemoteUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind:       prediction.RemoteErrorNetwork,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %w", prediction.ErrRemoteUnavailable, err),
		}
	}

	switch {
	case resp.StatusCode >= 500:
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind:       prediction.RemoteErrorNetwork,
			StatusCode: resp.StatusCode,
			Err:        prediction.ErrRemoteUnavailable,
		}
	case resp.StatusCode >= 400:
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind:       prediction.RemoteErrorValidation,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody), maxErrorBody),
		}
	}

	var wire scoring.PredictResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind:       prediction.RemoteErrorDecode,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	if wire.LeaveTime.IsZero() {
		return prediction.Prediction{}, &prediction.RemoteError{
			Kind:       prediction.RemoteErrorDecode,
			StatusCode: resp.StatusCode,
			Message:    "response has no leave_time",
		}
	}

	c.logger.Debug().
		Time("leave_time", wire.LeaveTime).
		Float64("confidence", wire.Confidence).
		Msg("remote prediction received")

	return fromWire(wire), nil
}

func toWire(req prediction.RemoteRequest) scoring.PredictRequest {
	snap := req.Snapshot
	arrival := req.ArrivalTime.UTC()
	current := req.CurrentTime.UTC()

	return scoring.PredictRequest{
		Origin:      &scoring.Point{Latitude: req.Origin.Lat, Longitude: req.Origin.Lon},
		Destination: &scoring.Point{Latitude: req.Destination.Lat, Longitude: req.Destination.Lon},
		ArrivalTime: &arrival,
		CurrentTime: &current,
		RouteFeatures: &scoring.RouteFeatures{
			Distance:            snap.Route.DistanceMeters,
			BaselineDuration:    snap.Route.BaselineDurationSeconds,
			CurrentTrafficDelay: snap.Route.TrafficDelaySeconds(),
			IncidentCount:       0,
			CongestionLevel:     int(snap.Route.Congestion.Clamp()),
		},
		WeatherFeatures: &scoring.WeatherFeatures{
			WeatherScore:             snap.Weather.Score(),
			PrecipitationProbability: snap.Weather.PrecipitationProbability,
			Visibility:               snap.Weather.VisibilityKm,
			WeatherDelay:             snap.HeuristicDelaySeconds,
		},
		UserBufferMinutes: req.UserBufferMinutes,
	}
}

func fromWire(w scoring.PredictResponse) prediction.Prediction {
	alts := make([]prediction.AlternativeLeaveTime, 0, len(w.AlternativeLeaveTimes))
	for _, a := range w.AlternativeLeaveTimes {
		alts = append(alts, prediction.AlternativeLeaveTime{
			LeaveTime:          a.LeaveTime,
			ArrivalProbability: a.ArrivalProbability,
			Description:        a.Description,
		})
	}
	return prediction.Prediction{
		LeaveTime:     w.LeaveTime,
		Confidence:    w.Confidence,
		Explanation:   w.Explanation,
		Alternatives:  alts,
		BufferMinutes: w.BufferMinutes,
		Source:        prediction.SourceRemoteModel,
		PredictedAt:   w.CalculatedAt,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
