package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	err   error
	calls int
}

func (s *stubExecutor) Dialect() Dialect { return NewDialect("sqlite") }

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return [][]any{{int64(1)}}, nil
}

func breakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		ReadyToTripRatio: 0.5,
		MinRequests:      3,
	}
}

func TestBreakerExecutor_DisabledReturnsNext(t *testing.T) {
	next := &stubExecutor{}
	assert.Same(t, next, NewBreakerExecutor(next, BreakerConfig{}, nil))
}

func TestBreakerExecutor_TripsAfterFailures(t *testing.T) {
	next := &stubExecutor{err: errors.New("connection refused")}
	exec := NewBreakerExecutor(next, breakerConfig(), nil)

	for i := 0; i < 3; i++ {
		_, err := exec.Query(context.Background(), "SELECT 1")
		require.Error(t, err)
	}
	_, err := exec.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, gobreaker.StateOpen, exec.(*BreakerExecutor).State())
}

func TestBreakerExecutor_CancellationDoesNotTrip(t *testing.T) {
	next := &stubExecutor{err: context.Canceled}
	exec := NewBreakerExecutor(next, breakerConfig(), nil)

	for i := 0; i < 5; i++ {
		_, err := exec.Query(context.Background(), "SELECT 1")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 5, next.calls)
	assert.Equal(t, gobreaker.StateClosed, exec.(*BreakerExecutor).State())
}

func TestBreakerExecutor_PassesRows(t *testing.T) {
	exec := NewBreakerExecutor(&stubExecutor{}, breakerConfig(), nil)
	rows, err := exec.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, rows)
	assert.Equal(t, DialectSQLite, exec.Dialect().Name())
}
