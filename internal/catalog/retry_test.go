package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	policy := NewRetryPolicy(
		WithMaxAttempts(5),
		WithInitialDelay(5*time.Millisecond),
		WithMaxDelay(20*time.Millisecond),
	)

	err := policy.execute(context.Background(), fn)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	fn := func() error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("still down")
	}

	policy := NewRetryPolicy(WithMaxAttempts(10))

	err := policy.execute(ctx, fn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("still down")
	}

	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
	)

	err := policy.execute(context.Background(), fn)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
