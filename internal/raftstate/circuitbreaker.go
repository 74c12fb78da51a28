package raftstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// errCircuitOpen is returned by ForwardWriteClient.ForwardWrite while the
// breaker is open, so a follower stops hammering a leader address that has
// stopped responding (e.g. mid-election) instead of blocking every caller
// on the RPC timeout.
var errCircuitOpen = errors.New("raftstate: forward_write circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker protects the forward_write RPC path against a leader that
// has gone unreachable. It never gates Apply against the local FSM, only
// the cross-node forwarding call.
type circuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration

	state        breakerState
	failures     int
	successes    int
	lastFailTime time.Time

	logger *zap.Logger
}

func newCircuitBreaker(logger *zap.Logger) *circuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &circuitBreaker{
		failureThreshold: 5,
		successThreshold: 1,
		resetTimeout:     30 * time.Second,
		state:            breakerClosed,
		logger:           logger,
	}
}

func (cb *circuitBreaker) execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	if cb.state == breakerOpen {
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.state = breakerHalfOpen
			cb.failures = 0
			cb.successes = 0
		} else {
			cb.mu.Unlock()
			return errCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *circuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailTime = time.Now()
		if cb.failures >= cb.failureThreshold {
			if cb.state != breakerOpen {
				cb.logger.Warn("forward_write circuit opened", zap.Int("failures", cb.failures), zap.Error(err))
			}
			cb.state = breakerOpen
		}
		return
	}

	cb.successes++
	cb.failures = 0
	if cb.state == breakerHalfOpen && cb.successes >= cb.successThreshold {
		cb.state = breakerClosed
		cb.logger.Info("forward_write circuit closed")
	}
}
