package distributor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/vaultaire/internal/types"
)

func providers(n int) []types.Provider {
	out := make([]types.Provider, n)
	for i := range out {
		out[i] = types.Provider{ID: int64(i + 1), Name: "p", Weight: 1}
	}
	return out
}

func TestDistributor_RoundRobinFair(t *testing.T) {
	d, err := New(RoundRobin, providers(3))
	require.NoError(t, err)

	counts := make(map[int64]int)
	for i := 0; i < 9; i++ {
		counts[d.NextProvider().ID]++
	}
	for id, c := range counts {
		assert.Equal(t, 3, c, "provider %d", id)
	}
}

func TestDistributor_Weighted(t *testing.T) {
	ps := []types.Provider{
		{ID: 1, Weight: 1},
		{ID: 2, Weight: 3},
	}
	d, err := New(Weighted, ps)
	require.NoError(t, err)

	counts := make(map[int64]int)
	for i := 0; i < 8; i++ {
		counts[d.NextProvider().ID]++
	}
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, 6, counts[2])
}

func TestDistributor_NextProvidersClampedAndDistinct(t *testing.T) {
	d, err := New(RoundRobin, providers(2))
	require.NoError(t, err)

	got := d.NextProviders(5)
	assert.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestDistributor_EmptyProvidersRejected(t *testing.T) {
	_, err := New(RoundRobin, nil)
	assert.Error(t, err)
}

func TestDistributor_ConcurrentSelectionNeverPanics(t *testing.T) {
	d, err := New(RoundRobin, providers(4))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.NextProvider()
		}()
	}
	wg.Wait()
}
