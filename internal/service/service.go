package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// ReadingService returns the current reading for a city, serving it from the
// cache while it is valid and fetching it upstream otherwise. Concurrent
// misses for the same city share a single upstream call.
type ReadingService struct {
	client    client.WeatherClient
	cache     cache.Cache
	coalescer *requestCoalescer
}

// NewReadingService creates a ReadingService over the given client and cache.
func NewReadingService(c client.WeatherClient, store cache.Cache) *ReadingService {
	return &ReadingService{
		client:    c,
		cache:     store,
		coalescer: newRequestCoalescer(),
	}
}

// GetOrFetch implements the cache-aside read. Only successful readings are
// stored; a failure leaves the cache untouched and is returned wrapped so
// errors.Is matches the client's failure kinds.
func (s *ReadingService) GetOrFetch(ctx context.Context, city string) (models.Reading, error) {
	key := normalizeCity(city)
	if key == "" {
		return models.Reading{}, client.ErrInvalidCity
	}
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	if cached, ok := s.cache.Get(key); ok {
		observability.CacheHitsTotal.Inc()
		logger.Debug("reading served", zap.String("city", key), zap.Bool("cached", true))
		return cached, nil
	}
	observability.CacheMissesTotal.Inc()
	logger.Debug("cache miss, fetching upstream", zap.String("city", key))

	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	reading, shared, err := s.coalescer.Do(ctx, key, func() (models.Reading, error) {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		r, err := s.client.Fetch(flightCtx, city)
		if err != nil {
			return models.Reading{}, err
		}
		s.cache.Set(key, r)
		return r, nil
	})
	if shared {
		observability.FetchCoalescedTotal.Inc()
	}
	if err != nil {
		return models.Reading{}, fmt.Errorf("get reading for %s: %w", key, err)
	}
	logger.Debug("reading served",
		zap.String("city", key),
		zap.Bool("cached", false),
		zap.Bool("coalesced", shared),
		zap.Duration("duration", time.Since(start)),
	)
	return reading, nil
}

// normalizeCity trims whitespace and lowercases so "Delhi" and " delhi "
// share one cache entry.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
