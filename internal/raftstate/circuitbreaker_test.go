package raftstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := newCircuitBreaker(nil)
	cb.failureThreshold = 3

	for i := 0; i < 3; i++ {
		_ = cb.execute(context.Background(), func() error { return errors.New("unreachable") })
	}

	attempts := 0
	err := cb.execute(context.Background(), func() error { attempts++; return nil })

	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, 0, attempts, "should not call fn while circuit is open")
}

func TestCircuitBreaker_ClosesAfterResetTimeout(t *testing.T) {
	cb := newCircuitBreaker(nil)
	cb.failureThreshold = 2
	cb.resetTimeout = 50 * time.Millisecond

	for i := 0; i < 2; i++ {
		_ = cb.execute(context.Background(), func() error { return errors.New("fail") })
	}
	require.Equal(t, breakerOpen, cb.state)

	time.Sleep(75 * time.Millisecond)

	err := cb.execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, breakerClosed, cb.state)
}
