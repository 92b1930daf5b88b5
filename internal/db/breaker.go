package db

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the storage circuit breaker.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
	MinRequests      uint32
}

// BreakerExecutor wraps an Executor with circuit breaking so a failing store is
// not hammered by every incoming search.
type BreakerExecutor struct {
	next Executor
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerExecutor wraps next. A disabled config returns next unchanged.
func NewBreakerExecutor(next Executor, cfg BreakerConfig, logger *zap.Logger) Executor {
	if !cfg.Enabled {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}

	st := gobreaker.Settings{
		Name:        "storage",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ReadyToTripRatio
		},
		// a caller giving up is not a storage failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("[DB] circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BreakerExecutor{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Dialect implements Executor.
func (e *BreakerExecutor) Dialect() Dialect {
	return e.next.Dialect()
}

// Query implements Executor.
func (e *BreakerExecutor) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := e.cb.Execute(func() (interface{}, error) {
		return e.next.Query(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return rows.([][]any), nil
}

// State reports the breaker state, for health output.
func (e *BreakerExecutor) State() gobreaker.State {
	return e.cb.State()
}
