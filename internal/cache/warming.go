package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// ReadingFetcher is implemented by the service layer. Declared here so the
// warmer does not import the service package.
type ReadingFetcher interface {
	GetOrFetch(ctx context.Context, city string) (models.Reading, error)
}

// CacheWarmer prefetches readings for a fixed set of cities so the first
// dashboard view after start is served from the cache.
type CacheWarmer struct {
	fetcher   ReadingFetcher
	logger    *zap.Logger
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. A nil logger discards output.
func NewCacheWarmer(fetcher ReadingFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every city concurrently. Failures are joined into one error;
// successful fetches still populate the cache.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	if len(cities) == 0 {
		return nil
	}
	start := time.Now()
	observability.CacheWarmingTotal.Inc()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if _, err := w.fetcher.GetOrFetch(ctx, city); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// Start schedules Warm every interval, running the first pass immediately.
// Jobs use ctx for their fetches; Stop halts the scheduler.
func (w *CacheWarmer) Start(ctx context.Context, cities []string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		if err := w.Warm(ctx, cities); err != nil {
			w.logger.Warn("cache warming failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	w.scheduler = s
	s.StartAsync()
	return nil
}

// Stop halts the periodic warmer. Safe to call when Start was never called.
func (w *CacheWarmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
