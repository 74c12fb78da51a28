// Package distributor selects which storage providers a chunk is written
// to, using either round-robin or weighted rotation over a fixed provider
// set.
package distributor

import (
	"sync/atomic"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/types"
)

// Strategy selects how providers are picked from the rotation.
type Strategy int

const (
	RoundRobin Strategy = iota
	Weighted
)

// Distributor picks primary and replica providers for a chunk out of a
// fixed, non-empty provider set. Safe for concurrent use.
type Distributor struct {
	strategy    Strategy
	providers   []types.Provider
	cumulative  []uint64 // only populated for Weighted
	totalWeight uint64
	counter     uint64
}

// New builds a Distributor over providers, which must be non-empty.
func New(strategy Strategy, providers []types.Provider) (*Distributor, error) {
	if len(providers) == 0 {
		return nil, apperrors.Wrap("distributor.New", apperrors.InvalidInput, "no providers configured")
	}

	d := &Distributor{strategy: strategy, providers: append([]types.Provider(nil), providers...)}
	if strategy == Weighted {
		d.cumulative = make([]uint64, len(providers))
		var running uint64
		for i, p := range providers {
			w := p.Weight
			if w < 1 {
				w = 1
			}
			running += uint64(w)
			d.cumulative[i] = running
		}
		d.totalWeight = running
	}
	return d, nil
}

// NextProvider returns the next provider in rotation.
func (d *Distributor) NextProvider() types.Provider {
	n := atomic.AddUint64(&d.counter, 1) - 1
	switch d.strategy {
	case Weighted:
		return d.providers[d.weightedIndex(n)]
	default:
		return d.providers[n%uint64(len(d.providers))]
	}
}

func (d *Distributor) weightedIndex(n uint64) int {
	target := n % d.totalWeight
	for i, c := range d.cumulative {
		if target < c {
			return i
		}
	}
	return len(d.providers) - 1
}

// NextProviders returns up to k distinct providers starting from the next
// rotation position, clamped to the number of configured providers.
func (d *Distributor) NextProviders(k int) []types.Provider {
	if k > len(d.providers) {
		k = len(d.providers)
	}
	if k <= 0 {
		return nil
	}

	seen := make(map[int64]bool, k)
	out := make([]types.Provider, 0, k)
	for len(out) < k {
		p := d.NextProvider()
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// Len reports the number of configured providers.
func (d *Distributor) Len() int { return len(d.providers) }
