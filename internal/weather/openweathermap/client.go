// Package openweathermap provides the weather adapter backed by the
// OpenWeatherMap current-weather and One Call APIs.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/faults"
	"github.com/commutetimely/leavetime/internal/geo"
	"github.com/commutetimely/leavetime/internal/provider/resilience"
	"github.com/commutetimely/leavetime/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// DefaultOneCallURL is the OpenWeatherMap OneCall API 3.0 base URL.
	DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"

	// partlyCloudyMax is the cloud cover percentage up to which "Clouds" is partly cloudy.
	partlyCloudyMax = 50
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// OneCallURL is the OneCall API URL (optional, defaults to OneCall 3.0).
	OneCallURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Reporter receives out-of-range values before they are clamped.
	Reporter faults.Reporter

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	oneCallURL string
	httpClient HTTPDoer
	reporter   faults.Reporter
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	oneCallURL := cfg.OneCallURL
	if oneCallURL == "" {
		oneCallURL = DefaultOneCallURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		clientCfg.Registry = cfg.Registry
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		oneCallURL: oneCallURL,
		httpClient: httpClient,
		reporter:   cfg.Reporter,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Current fetches current weather for a location.
func (c *Client) Current(ctx context.Context, at geo.Coordinate) (weather.WeatherSnapshot, error) {
	if err := at.Validate(); err != nil {
		return weather.WeatherSnapshot{}, invalidCoordinates()
	}

	url := fmt.Sprintf("%s/weather?lat=%.6f&lon=%.6f&appid=%s&units=metric",
		c.baseURL, at.Lat, at.Lon, c.apiKey)

	var owmResp currentWeatherResponse
	if err := c.get(ctx, url, &owmResp); err != nil {
		return weather.WeatherSnapshot{}, err
	}

	return c.toSnapshot(ctx, &owmResp), nil
}

// Hourly fetches the hourly forecast for a location.
func (c *Client) Hourly(ctx context.Context, at geo.Coordinate) ([]weather.WeatherSnapshot, error) {
	if err := at.Validate(); err != nil {
		return nil, invalidCoordinates()
	}

	url := fmt.Sprintf("%s?lat=%.6f&lon=%.6f&appid=%s&units=metric&exclude=current,minutely,daily,alerts",
		c.oneCallURL, at.Lat, at.Lon, c.apiKey)

	var owmResp oneCallResponse
	if err := c.get(ctx, url, &owmResp); err != nil {
		return nil, err
	}

	if len(owmResp.Hourly) == 0 {
		return nil, &weather.Error{
			Provider: ProviderName,
			Code:     "NO_FORECAST",
			Message:  "forecast contained no hourly entries",
			Err:      weather.ErrNoDataForLocation,
		}
	}

	return c.toHourly(ctx, &owmResp), nil
}

// get performs the request and decodes a successful JSON body into dst.
func (c *Client) get(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &weather.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach weather provider",
			Err:      fmt.Errorf("%w: %w", weather.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &weather.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "failed to read weather response",
			Err:      fmt.Errorf("%w: %w", weather.ErrProviderUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp.StatusCode)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &weather.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "failed to decode weather response",
			Err:      fmt.Errorf("%w: %w", weather.ErrMalformedResponse, err),
		}
	}

	return nil
}

func handleErrorResponse(statusCode int) error {
	code := fmt.Sprintf("HTTP_%d", statusCode)
	sentinel := weather.ErrProviderUnavailable
	switch {
	case statusCode == http.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case statusCode == http.StatusNotFound:
		code = "NOT_FOUND"
		sentinel = weather.ErrNoDataForLocation
	case statusCode == http.StatusTooManyRequests:
		code = "RATE_LIMIT"
	case statusCode >= 500:
		code = fmt.Sprintf("SERVER_%d", statusCode)
	}

	return &weather.Error{
		Provider: ProviderName,
		Code:     code,
		Message:  fmt.Sprintf("weather provider returned status %d", statusCode),
		Err:      sentinel,
	}
}

func invalidCoordinates() error {
	return &weather.Error{
		Provider: ProviderName,
		Code:     "INVALID_COORDINATES",
		Message:  "invalid coordinates",
		Err:      weather.ErrInvalidCoordinates,
	}
}

// toSnapshot converts the current-weather response to the domain model.
// The endpoint carries no precipitation probability, so it is inferred from
// the reported condition.
func (c *Client) toSnapshot(ctx context.Context, resp *currentWeatherResponse) weather.WeatherSnapshot {
	snap := weather.WeatherSnapshot{
		TemperatureC: resp.Main.Temp,
		FeelsLikeC:   resp.Main.FeelsLike,
		VisibilityKm: c.visibilityKm(ctx, resp.Visibility),
		WindSpeed:    faults.ClampNonNegative(ctx, c.reporter, ProviderName, "wind_speed", resp.Wind.Speed),
		ValidAt:      time.Unix(resp.Dt, 0),
		CapturedAt:   c.now(),
		Condition:    weather.ConditionUnknown,
	}

	if len(resp.Weather) > 0 {
		snap.Condition = mapCondition(resp.Weather[0].Main, resp.Clouds.All)
		snap.Description = resp.Weather[0].Description
	}
	if snap.Condition.IsPrecipitating() {
		snap.PrecipitationProbability = 100
	}

	return snap
}

// toHourly converts the One Call hourly forecast to the domain model.
func (c *Client) toHourly(ctx context.Context, resp *oneCallResponse) []weather.WeatherSnapshot {
	captured := c.now()
	out := make([]weather.WeatherSnapshot, 0, len(resp.Hourly))

	for i := range resp.Hourly {
		h := &resp.Hourly[i]
		snap := weather.WeatherSnapshot{
			TemperatureC:             h.Temp,
			FeelsLikeC:               h.FeelsLike,
			PrecipitationProbability: faults.ClampRange(ctx, c.reporter, ProviderName, "pop", h.Pop*100, 0, 100),
			VisibilityKm:             c.visibilityKm(ctx, h.Visibility),
			WindSpeed:                faults.ClampNonNegative(ctx, c.reporter, ProviderName, "wind_speed", h.WindSpeed),
			ValidAt:                  time.Unix(h.Dt, 0),
			CapturedAt:               captured,
			Condition:                weather.ConditionUnknown,
		}
		if len(h.Weather) > 0 {
			snap.Condition = mapCondition(h.Weather[0].Main, h.Clouds)
			snap.Description = h.Weather[0].Description
		}
		out = append(out, snap)
	}

	return out
}

// visibilityKm converts meters to kilometers. OpenWeatherMap omits visibility
// in some regions; a missing value is treated as the 10 km maximum.
func (c *Client) visibilityKm(ctx context.Context, meters *float64) float64 {
	if meters == nil {
		return 10
	}
	return faults.ClampNonNegative(ctx, c.reporter, ProviderName, "visibility", *meters) / 1000
}

// mapCondition maps an OpenWeatherMap condition group to the domain condition.
func mapCondition(owmCondition string, cloudCover float64) weather.Condition {
	switch owmCondition {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		if cloudCover <= partlyCloudyMax {
			return weather.ConditionPartlyCloudy
		}
		return weather.ConditionCloudy
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm", "Squall", "Tornado":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionFog
	default:
		return weather.ConditionUnknown
	}
}

// OpenWeatherMap API response structures.

type conditionEntry struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

type currentWeatherResponse struct {
	Weather []conditionEntry `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Gust  float64 `json:"gust"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

type oneCallResponse struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hourly []struct {
		Dt         int64            `json:"dt"`
		Temp       float64          `json:"temp"`
		FeelsLike  float64          `json:"feels_like"`
		Clouds     float64          `json:"clouds"`
		Visibility *float64         `json:"visibility"`
		WindSpeed  float64          `json:"wind_speed"`
		Pop        float64          `json:"pop"`
		Weather    []conditionEntry `json:"weather"`
	} `json:"hourly"`
}
