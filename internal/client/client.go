package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-dashboard/internal/clock"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherClient fetches the current reading for a city from the upstream API.
type WeatherClient interface {
	Fetch(ctx context.Context, city string) (models.Reading, error)
	ValidateAPIKey(ctx context.Context) error
}

// ErrFetchFailure is the umbrella failure: every error returned by Fetch
// satisfies errors.Is(err, ErrFetchFailure). The kinds below narrow it down.
var ErrFetchFailure = errors.New("weather fetch failed")

var (
	ErrInvalidCity      = fmt.Errorf("%w: city is required", ErrFetchFailure)
	ErrNetwork          = fmt.Errorf("%w: network error", ErrFetchFailure)
	ErrInvalidAPIKey    = fmt.Errorf("%w: invalid API key", ErrFetchFailure)
	ErrCityNotFound     = fmt.Errorf("%w: city not found", ErrFetchFailure)
	ErrRateLimited      = fmt.Errorf("%w: rate limited", ErrFetchFailure)
	ErrUpstreamFailure  = fmt.Errorf("%w: upstream failure", ErrFetchFailure)
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", ErrFetchFailure)
)

// DefaultAPIURL is the OpenWeatherMap current-weather endpoint.
const DefaultAPIURL = "https://api.openweathermap.org/data/2.5/weather"

const maxBodyBytes = 1 << 20

// OpenWeatherClient calls the OpenWeatherMap current-weather endpoint once
// per Fetch. There are no retries: a failed call is reported to the caller as is.
type OpenWeatherClient struct {
	apiKey     string
	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	clock      clock.Clock
	location   *time.Location
	breaker    *gobreaker.CircuitBreaker
	probeCity  string
}

// Option configures an OpenWeatherClient.
type Option func(*OpenWeatherClient)

// WithClock sets the clock used to stamp readings.
func WithClock(c clock.Clock) Option {
	return func(o *OpenWeatherClient) { o.clock = c }
}

// WithLocation sets the fixed time zone readings are stamped in.
func WithLocation(loc *time.Location) Option {
	return func(o *OpenWeatherClient) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithCircuitBreaker routes upstream calls through cb.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(o *OpenWeatherClient) { o.breaker = cb }
}

// WithProbeCity sets the city used by ValidateAPIKey.
func WithProbeCity(city string) Option {
	return func(o *OpenWeatherClient) {
		if strings.TrimSpace(city) != "" {
			o.probeCity = strings.TrimSpace(city)
		}
	}
}

// NewOpenWeatherClient returns a client for apiURL. An empty or implausibly
// short key is a configuration error.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration, opts ...Option) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	c := &OpenWeatherClient{
		apiKey:     apiKey,
		apiURL:     apiURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock.Real{},
		location:   time.UTC,
		probeCity:  "London",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type openWeatherResponse struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string  `json:"main"`
		Description *string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
}

// Fetch issues one GET for city and maps the payload into a Reading stamped
// at completion in the configured zone. Any non-200 status or malformed
// payload is a failure; nothing partial is returned.
func (c *OpenWeatherClient) Fetch(ctx context.Context, city string) (models.Reading, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.Reading{}, ErrInvalidCity
	}

	var reading models.Reading
	var err error
	if c.breaker != nil {
		reading, err = c.callThroughBreaker(ctx, city)
	} else {
		reading, err = c.callAPI(ctx, city)
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return models.Reading{}, err
	}
	return reading, nil
}

func (c *OpenWeatherClient) callThroughBreaker(ctx context.Context, city string) (models.Reading, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, city)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.Reading{}, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
		}
		return models.Reading{}, err
	}
	reading, ok := result.(models.Reading)
	if !ok {
		return models.Reading{}, fmt.Errorf("%w: unexpected breaker result %T", ErrUpstreamFailure, result)
	}
	return reading, nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.Reading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Reading{}, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return models.Reading{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := statusError(resp.StatusCode); err != nil {
		return models.Reading{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Reading{}, fmt.Errorf("%w: read response body: %w", ErrNetwork, err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Reading{}, fmt.Errorf("%w: parse response: %v", ErrMalformedPayload, err)
	}

	return c.mapResponse(apiResp, city)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// statusError maps every status other than 200 to a failure kind.
func statusError(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case http.StatusNotFound:
		return ErrCityNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, city string) (models.Reading, error) {
	switch {
	case len(apiResp.Weather) == 0 || apiResp.Weather[0].Description == nil:
		return models.Reading{}, fmt.Errorf("%w: missing weather[0].description", ErrMalformedPayload)
	case apiResp.Main.Temp == nil:
		return models.Reading{}, fmt.Errorf("%w: missing main.temp", ErrMalformedPayload)
	case apiResp.Main.Humidity == nil:
		return models.Reading{}, fmt.Errorf("%w: missing main.humidity", ErrMalformedPayload)
	case apiResp.Wind.Speed == nil:
		return models.Reading{}, fmt.Errorf("%w: missing wind.speed", ErrMalformedPayload)
	}
	humidity := *apiResp.Main.Humidity
	if humidity < 0 || humidity > 100 {
		return models.Reading{}, fmt.Errorf("%w: humidity %d out of range", ErrMalformedPayload, humidity)
	}

	return models.Reading{
		City:        city,
		Description: *apiResp.Weather[0].Description,
		Temperature: *apiResp.Main.Temp,
		Humidity:    humidity,
		WindSpeed:   *apiResp.Wind.Speed,
		Timestamp:   c.clock.Now().In(c.location),
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey probes the upstream once. Only a 401 is reported as
// ErrInvalidAPIKey; a 404 for the probe city still proves the key works.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, c.probeCity)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: validation request: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	default:
		return fmt.Errorf("%w: validation HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
}
