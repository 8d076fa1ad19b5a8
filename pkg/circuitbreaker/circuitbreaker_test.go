package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             50 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func trip(t *testing.T, cb *CircuitBreaker, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
}

func TestClosedAllowsRequests(t *testing.T) {
	cb := New(DefaultConfig())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(failingConfig())

	trip(t, cb, 3)
	assert.Equal(t, StateOpen, cb.GetState())

	// 打开状态下直接拒绝，不执行函数
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(failingConfig())

	trip(t, cb, 2)
	require.NoError(t, cb.Execute(func() error { return nil }))
	trip(t, cb, 2)

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(failingConfig())

	trip(t, cb, 3)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(failingConfig())

	trip(t, cb, 3)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	_ = cb.Execute(func() error { return errBoom })

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestReset(t *testing.T) {
	cb := New(failingConfig())

	trip(t, cb, 3)
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
