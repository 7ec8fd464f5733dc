package http

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/health"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// dashboardRoute names the HTML route so middleware can answer it in HTML.
const dashboardRoute = "dashboard"

// RouterOptions configure NewRouter.
type RouterOptions struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Monitor        *health.Monitor
	RequestTimeout time.Duration
}

// NewRouter mounts the dashboard, JSON, health and metrics routes. Fetching
// routes are rate limited and bounded by RequestTimeout; panics are
// recovered and responses gzip-compressed when the client accepts it.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	fetching := router.NewRoute().Subrouter()
	fetching.Use(RateLimitMiddleware(opts.Limiter, opts.Monitor))
	if opts.RequestTimeout > 0 {
		fetching.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	fetching.HandleFunc("/", h.GetDashboard).Methods(http.MethodGet).Name(dashboardRoute)
	fetching.HandleFunc("/weather/{city}", h.GetWeather).Methods(http.MethodGet)
	fetching.HandleFunc("/weather/{city}/trend", h.GetTrend).Methods(http.MethodGet)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(handlers.CompressHandler(router))
}
