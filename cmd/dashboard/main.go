package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/clock"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/health"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/refresh"
	"github.com/kjstillabower/weather-dashboard/internal/render"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	watch := flag.Bool("watch", false, "render the dashboard in the terminal every 30s instead of serving HTTP")
	cityFlag := flag.String("city", "", "city to display (default from config)")
	smoothFlag := flag.Bool("smooth", true, "draw smooth trend lines")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = observability.SyncLogger(logger) }()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return 1
	}
	if *cityFlag != "" {
		cfg.City = *cityFlag
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "smooth" {
			cfg.SmoothLines = *smoothFlag
		}
	})

	opts := []client.Option{client.WithLocation(cfg.Location), client.WithProbeCity(cfg.City)}
	if cfg.CircuitBreakerEnabled {
		opts = append(opts, client.WithCircuitBreaker(
			client.NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout, logger)))
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.CircuitBreakerThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, opts...)
	if err != nil {
		logger.Error("weather client", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ValidateOnStart {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		err := weatherClient.ValidateAPIKey(probeCtx)
		cancel()
		switch {
		case errors.Is(err, client.ErrInvalidAPIKey):
			logger.Error("API key rejected by upstream", zap.Error(err))
			return 1
		case err != nil:
			logger.Warn("API key check inconclusive", zap.Error(err))
		}
	}

	readings := service.NewReadingService(weatherClient, cache.NewInMemoryCache(clock.Real{}))

	if *watch {
		return runWatch(ctx, cfg, readings, logger)
	}
	return serve(ctx, cfg, readings, logger)
}

// runWatch renders to stdout until a fetch fails or the process is stopped.
func runWatch(ctx context.Context, cfg *config.Config, readings *service.ReadingService, logger *zap.Logger) int {
	loop := refresh.New(cfg.City, readings, &render.Terminal{W: os.Stdout, Smooth: cfg.SmoothLines, Clear: true}, refresh.Options{
		Interval:    refresh.DefaultInterval,
		TrendPoints: cfg.TrendPoints,
		TrendStep:   cfg.TrendStep,
		Logger:      logger,
	})
	err := loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("watch stopped", zap.Int("cycles", loop.Cycles()))
		return 0
	}
	logger.Error("watch halted", zap.Error(err), zap.Int("cycles", loop.Cycles()))
	return 1
}

func serve(ctx context.Context, cfg *config.Config, readings *service.ReadingService, logger *zap.Logger) int {
	monitor := health.NewMonitor(clock.Real{}, cfg.HealthWindow, float64(cfg.DegradedErrorPct))
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	handler := httphandler.NewHandler(readings, monitor, httphandler.Settings{
		DefaultCity:   cfg.City,
		SmoothLines:   cfg.SmoothLines,
		TrendPoints:   cfg.TrendPoints,
		TrendStep:     cfg.TrendStep,
		CityMinLength: cfg.CityMinLength,
		CityMaxLength: cfg.CityMaxLength,
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		Monitor:        monitor,
		RequestTimeout: cfg.RequestTimeout,
	})

	warmer := cache.NewCacheWarmer(readings, logger)
	if len(cfg.WarmCities) > 0 {
		if err := warmer.Start(ctx, cfg.WarmCities, cfg.WarmInterval); err != nil {
			logger.Warn("cache warming disabled", zap.Error(err))
		}
	}
	defer warmer.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("city", cfg.City))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
	}

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete")
	return 0
}
