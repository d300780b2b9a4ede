package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	policy := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, policy.CalculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.CalculateDelay(1))
	assert.Equal(t, 800*time.Millisecond, policy.CalculateDelay(3))
	assert.Equal(t, time.Second, policy.CalculateDelay(4))
	assert.Equal(t, time.Second, policy.CalculateDelay(10))
	assert.Equal(t, 100*time.Millisecond, policy.CalculateDelay(-1))
}

func TestRetryPolicy_Execute(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond)
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := policy.Execute(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		}, nil)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := policy.Execute(context.Background(), func() error {
			calls++
			return errTransient
		}, nil)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non retryable error", func(t *testing.T) {
		calls := 0
		err := policy.Execute(context.Background(), func() error {
			calls++
			return errFatal
		}, func(err error) bool { return !errors.Is(err, errFatal) })
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := NewRetryPolicy(5, time.Hour, time.Hour).Execute(ctx, func() error {
			calls++
			return errTransient
		}, nil)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	})
}
