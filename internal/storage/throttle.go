package storage

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledBackend wraps a Backend with an egress rate limit applied to
// chunk and manifest downloads.
type ThrottledBackend struct {
	Backend
	limiter *rate.Limiter
}

// NewThrottledBackend limits download throughput to bytesPerSecond, with a
// burst equal to one second's worth of traffic.
func NewThrottledBackend(backend Backend, bytesPerSecond int) *ThrottledBackend {
	return &ThrottledBackend{
		Backend: backend,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

func (t *ThrottledBackend) DownloadChunk(ctx context.Context, key string) ([]byte, error) {
	data, err := t.Backend.DownloadChunk(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := t.wait(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (t *ThrottledBackend) DownloadManifest(ctx context.Context) ([]byte, error) {
	data, err := t.Backend.DownloadManifest(ctx)
	if err != nil {
		return nil, err
	}
	if err := t.wait(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// wait consumes n bytes of budget in burst-sized installments, since
// rate.Limiter.WaitN rejects requests larger than its burst.
func (t *ThrottledBackend) wait(ctx context.Context, n int) error {
	burst := t.limiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := t.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (t *ThrottledBackend) Name() string { return "throttled-" + t.Backend.Name() }
