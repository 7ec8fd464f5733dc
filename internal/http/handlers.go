package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/health"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/render"
	"github.com/kjstillabower/weather-dashboard/internal/trend"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

const maxTrendPoints = 500

// ReadingService is the read path the handlers depend on.
type ReadingService interface {
	GetOrFetch(ctx context.Context, city string) (models.Reading, error)
}

// Settings are the dashboard defaults applied when a request leaves them out.
type Settings struct {
	DefaultCity   string
	SmoothLines   bool
	TrendPoints   int
	TrendStep     time.Duration
	CityMinLength int
	CityMaxLength int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	readings ReadingService
	monitor  *health.Monitor
	settings Settings
	logger   *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil monitor disables outcome tracking
// and /health always reports healthy.
func NewHandler(readings ReadingService, monitor *health.Monitor, settings Settings, logger *zap.Logger) *Handler {
	if settings.DefaultCity == "" {
		settings.DefaultCity = "Bangalore"
	}
	if settings.TrendPoints <= 0 {
		settings.TrendPoints = trend.DefaultPoints
	}
	if settings.TrendStep <= 0 {
		settings.TrendStep = trend.DefaultStep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		readings: readings,
		monitor:  monitor,
		settings: settings,
		logger:   logger,
	}
}

// GetDashboard handles GET /?city=&smooth=. The page is rendered into a
// buffer first so a template failure never leaves a half-written 200.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cityParam := q.Get("city")
	if cityParam == "" {
		cityParam = h.settings.DefaultCity
	}
	smooth := h.settings.SmoothLines
	if v := q.Get("smooth"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			smooth = b
		}
	}

	city, err := validation.ValidateCity(cityParam, h.settings.CityMinLength, h.settings.CityMaxLength)
	if err != nil {
		h.writeDashboardError(w, r, http.StatusBadRequest, err)
		return
	}

	reading, err := h.readings.GetOrFetch(r.Context(), city)
	if err != nil {
		h.recordError()
		h.writeDashboardError(w, r, statusForFetchError(err), err)
		return
	}
	h.recordSuccess()

	var buf bytes.Buffer
	d := render.Build(reading, trend.Synthesize(reading, h.settings.TrendPoints, h.settings.TrendStep), smooth)
	if err := render.WriteHTML(&buf, d); err != nil {
		observability.DashboardRendersTotal.WithLabelValues("html", "render_failed").Inc()
		observability.LoggerFromContext(r.Context()).Error("render dashboard", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	observability.DashboardRendersTotal.WithLabelValues("html", "success").Inc()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeDashboardError(w http.ResponseWriter, r *http.Request, status int, cause error) {
	observability.DashboardRendersTotal.WithLabelValues("html", "error").Inc()
	observability.LoggerFromContext(r.Context()).Debug("dashboard fetch failed", zap.Int("status", status), zap.Error(cause))
	writeHTMLError(w, status, render.FailureMessage)
}

func writeHTMLError(w http.ResponseWriter, status int, message string) {
	var buf bytes.Buffer
	_ = render.WriteHTMLError(&buf, message)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// GetWeather handles GET /weather/{city}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.settings.CityMinLength, h.settings.CityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	reading, err := h.readings.GetOrFetch(r.Context(), city)
	if err != nil {
		h.recordError()
		writeFetchError(w, r, err)
		return
	}
	h.recordSuccess()
	writeJSON(w, http.StatusOK, reading)
}

// trendResponse is the body of GET /weather/{city}/trend.
type trendResponse struct {
	City      string              `json:"city"`
	Synthetic bool                `json:"synthetic"`
	Step      string              `json:"step"`
	Current   models.Reading      `json:"current"`
	Points    []models.TrendPoint `json:"points"`
}

// GetTrend handles GET /weather/{city}/trend?points=&step=. The points are
// synthesized from the current reading, never observed.
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.settings.CityMinLength, h.settings.CityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	n := h.settings.TrendPoints
	if v := r.URL.Query().Get("points"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxTrendPoints {
			writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "points must be an integer between 1 and "+strconv.Itoa(maxTrendPoints))
			return
		}
		n = parsed
	}
	step := h.settings.TrendStep
	if v := r.URL.Query().Get("step"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "step must be a positive duration such as 3m")
			return
		}
		step = parsed
	}

	reading, err := h.readings.GetOrFetch(r.Context(), city)
	if err != nil {
		h.recordError()
		writeFetchError(w, r, err)
		return
	}
	h.recordSuccess()
	writeJSON(w, http.StatusOK, trendResponse{
		City:      reading.City,
		Synthetic: true,
		Step:      step.String(),
		Current:   reading,
		Points:    trend.Synthesize(reading, n, step),
	})
}

// GetHealth handles GET /health. Degraded and shutting-down answer 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Report{Status: health.StatusHealthy, Service: observability.ServiceName}
	if h.monitor != nil {
		report = h.monitor.Report(observability.ServiceName)
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != report.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", report.Status),
			zap.Float64("error_rate_pct", report.ErrorRatePct))
	}
	h.healthStatusPrev = report.Status
	h.healthStatusMu.Unlock()

	status := http.StatusOK
	if report.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *Handler) recordSuccess() {
	if h.monitor != nil {
		h.monitor.RecordSuccess()
	}
}

func (h *Handler) recordError() {
	if h.monitor != nil {
		h.monitor.RecordError()
	}
}

// statusForFetchError maps a fetch failure to an HTTP status: bad input 400,
// unknown city 404, anything upstream 503.
func statusForFetchError(err error) int {
	switch {
	case errors.Is(err, client.ErrInvalidCity), errors.Is(err, validation.ErrInvalidCity):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrCityNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's
// correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeFetchError maps a fetch failure to the error envelope. Upstream
// detail is logged, not returned.
func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Debug("fetch error",
		zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
	switch status := statusForFetchError(err); status {
	case http.StatusBadRequest:
		writeError(w, r, status, "INVALID_CITY", "city is invalid")
	case http.StatusNotFound:
		writeError(w, r, status, "CITY_NOT_FOUND", "city not found")
	default:
		writeError(w, r, status, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
