package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewCircuitBreaker returns a breaker that opens after failureThreshold
// consecutive upstream failures and half-opens after timeout. Unknown cities
// and caller cancellation are not upstream failures and never trip it.
func NewCircuitBreaker(failureThreshold uint32, timeout time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweathermap",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	})
}

// isBreakerSuccess reports whether err leaves the upstream's health intact.
func isBreakerSuccess(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrCityNotFound), errors.Is(err, ErrInvalidCity):
		return true
	case errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}
