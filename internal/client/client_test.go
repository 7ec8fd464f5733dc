package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/clock"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const testAPIKey = "test-api-key-12345"

// okPayload returns an OpenWeatherMap-shaped body for description/temp/humidity/wind.
func okPayload(description string, temp float64, humidity int, wind float64) map[string]interface{} {
	return map[string]interface{}{
		"name": "Bengaluru",
		"main": map[string]interface{}{
			"temp":     temp,
			"humidity": humidity,
		},
		"weather": []map[string]interface{}{
			{"main": "Rain", "description": description},
		},
		"wind": map[string]interface{}{
			"speed": wind,
		},
	}
}

func jsonHandler(status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if c != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("NewOpenWeatherClient() expected client, got nil")
			}
		})
	}
}

func TestOpenWeatherClient_Fetch_Success(t *testing.T) {
	fetchedAt := time.Date(2026, 10, 19, 6, 30, 0, 0, time.UTC)
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "Bangalore" {
			t.Errorf("q = %q, want Bangalore", q.Get("q"))
		}
		if q.Get("appid") != testAPIKey {
			t.Errorf("appid = %q, want %q", q.Get("appid"), testAPIKey)
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		jsonHandler(http.StatusOK, okPayload("light rain", 22.5, 80, 3.2))(w, r)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second,
		WithClock(clock.NewFake(fetchedAt)), WithLocation(ist))
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := c.Fetch(context.Background(), "  Bangalore ")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got.City != "Bangalore" {
		t.Errorf("City = %q, want Bangalore", got.City)
	}
	if got.Description != "light rain" {
		t.Errorf("Description = %q, want light rain", got.Description)
	}
	if got.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", got.Temperature)
	}
	if got.Humidity != 80 {
		t.Errorf("Humidity = %d, want 80", got.Humidity)
	}
	if got.WindSpeed != 3.2 {
		t.Errorf("WindSpeed = %v, want 3.2", got.WindSpeed)
	}
	if !got.Timestamp.Equal(fetchedAt) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, fetchedAt)
	}
	if got.Timestamp.Location().String() != "Asia/Kolkata" {
		t.Errorf("Timestamp zone = %s, want Asia/Kolkata", got.Timestamp.Location())
	}
}

func TestOpenWeatherClient_Fetch_EmptyCity(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = c.Fetch(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidCity) {
		t.Errorf("Fetch() error = %v, want ErrInvalidCity", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("upstream calls = %d, want 0 for empty city", n)
	}
}

// TestOpenWeatherClient_Fetch_ErrorHandling verifies each non-200 status maps
// to its kind, that every kind is also ErrFetchFailure, and that exactly one
// call is made (no retries).
func TestOpenWeatherClient_Fetch_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"404 not found", http.StatusNotFound, ErrCityNotFound},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"500 server error", http.StatusInternalServerError, ErrUpstreamFailure},
		{"502 bad gateway", http.StatusBadGateway, ErrUpstreamFailure},
		{"204 no content", http.StatusNoContent, ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			_, err = c.Fetch(context.Background(), "nowhere")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrFetchFailure) {
				t.Errorf("Fetch() error = %v, want ErrFetchFailure", err)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("upstream calls = %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestOpenWeatherClient_Fetch_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"empty weather array", `{"weather":[],"main":{"temp":20,"humidity":50},"wind":{"speed":1}}`},
		{"missing description", `{"weather":[{"main":"Rain"}],"main":{"temp":20,"humidity":50},"wind":{"speed":1}}`},
		{"missing temp", `{"weather":[{"description":"mist"}],"main":{"humidity":50},"wind":{"speed":1}}`},
		{"missing humidity", `{"weather":[{"description":"mist"}],"main":{"temp":20},"wind":{"speed":1}}`},
		{"missing wind", `{"weather":[{"description":"mist"}],"main":{"temp":20,"humidity":50}}`},
		{"humidity out of range", `{"weather":[{"description":"mist"}],"main":{"temp":20,"humidity":140},"wind":{"speed":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}

			got, err := c.Fetch(context.Background(), "Delhi")
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Fetch() error = %v, want ErrMalformedPayload", err)
			}
			if got.City != "" || !got.Timestamp.IsZero() {
				t.Errorf("Fetch() returned partial reading %+v, want zero value", got)
			}
		})
	}
}

func TestOpenWeatherClient_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, url, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	_, err = c.Fetch(context.Background(), "Delhi")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Fetch() error = %v, want ErrNetwork", err)
	}
}

func TestOpenWeatherClient_Fetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Fetch(ctx, "Delhi")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
	if CategorizeError(err) != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want %v", CategorizeError(err), ErrorCategoryTimeout)
	}
}

func TestOpenWeatherClient_Fetch_CorrelationID(t *testing.T) {
	var captured atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Store(r.Header.Get("X-Correlation-ID"))
		jsonHandler(http.StatusOK, okPayload("clear sky", 30, 40, 2))(w, r)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := c.Fetch(ctx, "Delhi"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got, _ := captured.Load().(string); got != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want test-correlation-id-123", got)
	}
}

// TestOpenWeatherClient_Fetch_CircuitBreakerOpens verifies that after the
// configured consecutive failures the breaker short-circuits further calls
// and the caller still sees a fetch failure.
func TestOpenWeatherClient_Fetch_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second,
		WithCircuitBreaker(NewCircuitBreaker(2, time.Minute, nil)))
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		_, err := c.Fetch(context.Background(), "Delhi")
		if !errors.Is(err, ErrUpstreamFailure) {
			t.Errorf("Fetch() #%d error = %v, want ErrUpstreamFailure", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("upstream calls = %d, want 2 (breaker open after threshold)", n)
	}
}

// Repeated lookups for an unknown city must not open the breaker for
// every other city.
func TestOpenWeatherClient_Fetch_CircuitBreakerIgnoresUnknownCity(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("q") == "Nowhereville" {
			jsonHandler(http.StatusNotFound, map[string]string{"cod": "404", "message": "city not found"})(w, r)
			return
		}
		jsonHandler(http.StatusOK, okPayload("clear sky", 28.0, 40, 2.1))(w, r)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second,
		WithCircuitBreaker(NewCircuitBreaker(3, time.Minute, nil)))
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := c.Fetch(context.Background(), "Nowhereville"); !errors.Is(err, ErrCityNotFound) {
			t.Fatalf("Fetch(Nowhereville) #%d error = %v, want ErrCityNotFound", i, err)
		}
	}
	reading, err := c.Fetch(context.Background(), "Bangalore")
	if err != nil {
		t.Fatalf("Fetch(Bangalore) error = %v, want nil after unknown-city lookups", err)
	}
	if reading.Description != "clear sky" {
		t.Errorf("Description = %q, want clear sky", reading.Description)
	}
	if n := atomic.LoadInt32(&calls); n != 6 {
		t.Errorf("upstream calls = %d, want 6", n)
	}
}

func TestIsBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"city not found", ErrCityNotFound, true},
		{"caller canceled", context.Canceled, true},
		{"upstream 5xx", ErrUpstreamFailure, false},
		{"rate limited", ErrRateLimited, false},
		{"network", ErrNetwork, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBreakerSuccess(tt.err); got != tt.want {
				t.Errorf("isBreakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"ok", http.StatusOK, nil},
		{"probe city unknown still valid", http.StatusNotFound, nil},
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"upstream down", http.StatusBadGateway, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("q") != "Bangalore" {
					t.Errorf("probe q = %q, want Bangalore", r.URL.Query().Get("q"))
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second, WithProbeCity("Bangalore"))
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}
			err = c.ValidateAPIKey(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateAPIKey() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		429: "rate_limited",
		404: "client_error",
		503: "server_error",
		101: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
