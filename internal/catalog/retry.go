package catalog

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy governs the exponential backoff used to open the catalog's
// Postgres connection at process startup, when the database may still be
// coming up behind the application (container orchestration races). It is
// never used to retry a catalog operation once the process is running:
// a live query failure surfaces to the caller, per the no-automatic-
// data-plane-retry rule the rest of this package follows.
type RetryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
	logger       *zap.Logger
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

func WithMaxAttempts(n int) RetryOption        { return func(p *RetryPolicy) { p.maxAttempts = n } }
func WithInitialDelay(d time.Duration) RetryOption { return func(p *RetryPolicy) { p.initialDelay = d } }
func WithMaxDelay(d time.Duration) RetryOption     { return func(p *RetryPolicy) { p.maxDelay = d } }
func WithLogger(logger *zap.Logger) RetryOption    { return func(p *RetryPolicy) { p.logger = logger } }

// NewRetryPolicy builds a policy with sane startup-probe defaults.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:  5,
		initialDelay: 200 * time.Millisecond,
		maxDelay:     10 * time.Second,
		multiplier:   2.0,
		jitter:       true,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RetryPolicy) execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == p.maxAttempts-1 {
			break
		}
		delay := p.calculateDelay(attempt)
		p.logger.Debug("catalog connect failed, retrying",
			zap.Error(lastErr), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if p.jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// OpenWithRetry opens the catalog, retrying under policy while the
// database is unreachable or not yet accepting connections.
func OpenWithRetry(ctx context.Context, cfg Config, policy *RetryPolicy) (*Catalog, error) {
	var cat *Catalog
	err := policy.execute(ctx, func() error {
		c, err := Open(cfg)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return err
		}
		cat = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}
