package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CountersIncrementAndScrape(t *testing.T) {
	r := New()
	r.ChunksWritten.Inc()
	r.ChunksWritten.Inc()
	r.BytesStored.Add(42)
	r.GCOrphansFound.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "vaultaire_pipeline_chunks_written_total 2")
	assert.Contains(t, body, "vaultaire_pipeline_bytes_stored_total 42")
	assert.Contains(t, body, "vaultaire_gc_orphans_found 3")
}
