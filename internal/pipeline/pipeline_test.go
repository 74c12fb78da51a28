package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/audit"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/distributor"
	"github.com/FairForge/vaultaire/internal/keys"
	"github.com/FairForge/vaultaire/internal/metrics"
	"github.com/FairForge/vaultaire/internal/storage"
	"github.com/FairForge/vaultaire/internal/types"
	"github.com/FairForge/vaultaire/internal/vchunk"
)

// memBackend is an in-memory storage.Backend used to observe exactly what
// a Pipeline uploads and to serve it back on download.
type memBackend struct {
	mu     sync.Mutex
	name   string
	chunks map[string][]byte
}

func newMemBackend(name string) *memBackend {
	return &memBackend{name: name, chunks: make(map[string][]byte)}
}

func (m *memBackend) UploadChunk(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.chunks[key] = cp
	return nil
}

func (m *memBackend) DownloadChunk(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.chunks[key]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func (m *memBackend) DeleteChunk(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, key)
	return nil
}

func (m *memBackend) ChunkExists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.chunks[key]
	return ok, nil
}

func (m *memBackend) UploadManifest(context.Context, []byte) error     { return nil }
func (m *memBackend) DownloadManifest(context.Context) ([]byte, error) { return nil, nil }
func (m *memBackend) TestConnection(context.Context) error             { return nil }
func (m *memBackend) Name() string                                     { return m.name }

var _ storage.Backend = (*memBackend)(nil)

// fakeKeyProvider serves one fixed ManagedKey, enough to exercise the
// encrypt/decrypt round trip without a real keystore.
type fakeKeyProvider struct {
	key keys.ManagedKey
}

func newFakeKeyProvider(id string) *fakeKeyProvider {
	var k keys.ManagedKey
	k.ID = id
	for i := range k.Key {
		k.Key[i] = byte(i)
	}
	k.CreatedAt = time.Unix(0, 0)
	return &fakeKeyProvider{key: k}
}

func (f *fakeKeyProvider) CurrentKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) KeyByID(_ context.Context, id string) (keys.ManagedKey, error) {
	if id != f.key.ID {
		return keys.ManagedKey{}, assert.AnError
	}
	return f.key, nil
}
func (f *fakeKeyProvider) CreateKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) RotateKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) ListKeyIDs(context.Context) ([]string, error)      { return []string{f.key.ID}, nil }

var _ keys.Provider = (*fakeKeyProvider)(nil)

func newTestPipeline(t *testing.T, db *catalog.Catalog, backend storage.Backend) *Pipeline {
	t.Helper()

	chunker, err := vchunk.NewFixedChunker(1024)
	require.NoError(t, err)
	compressor, err := vchunk.NewCompressor(vchunk.CompressionNone)
	require.NoError(t, err)

	dist, err := distributor.New(distributor.RoundRobin, []types.Provider{{ID: 1, Weight: 1}})
	require.NoError(t, err)

	return New(chunker, compressor, newFakeKeyProvider("key1"), dist,
		map[int64]storage.Backend{1: backend}, db, Config{ReplicationFactor: 1}, zap.NewNop())
}

func TestPipeline_PutThenGet_RoundTrip(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	backend := newMemBackend("mem")
	p := newTestPipeline(t, cat, backend)

	body := []byte("hello")
	hash := types.SumChunkHash(body).String()

	// Put: resolve namespace, dedup-insert the chunk, upsert the object. The
	// chunk's random nonce is captured so the Get half can serve it back.
	var nonce []byte
	mock.ExpectQuery("SELECT id FROM namespaces").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO chunks").
		WithArgs(sqlmock.AnyArg(), captureBytes{&nonce}, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("0"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM objects WHERE").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO objects").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec("INSERT INTO object_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := p.Put(context.Background(), "mybucket", "mykey", "text/plain", body)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.ObjectID)
	assert.Equal(t, 1, res.ChunkCount)
	assert.NotEmpty(t, backend.chunks)

	// Get: resolve namespace, load object + chunk list, resolve locations.
	mock.ExpectQuery("SELECT id FROM namespaces").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("SELECT id, size, etag, content_type, chunk_count, key_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "size", "etag", "content_type", "chunk_count", "key_id"}).
			AddRow(100, int64(len(body)), "etag", nil, 1, "key1"))
	mock.ExpectQuery("SELECT chunk_hash, chunk_index, byte_offset FROM object_chunks").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_hash", "chunk_index", "byte_offset"}).AddRow(hash, 0, 0))
	mock.ExpectQuery("SELECT nonce, key_id, provider_id, storage_key, size_encrypted, size_compressed").
		WillReturnRows(sqlmock.NewRows([]string{"nonce", "key_id", "provider_id", "storage_key", "size_encrypted", "size_compressed"}).
			AddRow(nonce, "key1", int64(1), hash2storageKey(hash), int64(len(body)+16), nil))
	mock.ExpectQuery("SELECT provider_id, storage_key FROM chunk_replicas").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}))

	got, err := p.Get(context.Background(), "mybucket", "mykey")
	require.NoError(t, err)
	assert.Equal(t, body, got.Body)
	require.NoError(t, mock.ExpectationsWereMet())
}

// captureBytes is a sqlmock argument matcher that records the []byte it is
// matched against, so a later mocked row can return the same value.
type captureBytes struct{ dst *[]byte }

func (c captureBytes) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if ok {
		*c.dst = append([]byte(nil), b...)
	}
	return ok
}

func hash2storageKey(hexHash string) string {
	h, _ := types.ParseChunkHash(hexHash)
	return h.StorageKey()
}

// TestPipeline_Put_OverwriteDeletesStaleChunks guards against InsertObject's
// staleLocations being silently discarded: overwriting an object must
// physically delete the superseded chunk, not just drop its catalog row.
func TestPipeline_Put_OverwriteDeletesStaleChunks(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	backend := newMemBackend("mem")
	p := newTestPipeline(t, cat, backend)

	oldBody := []byte("hello")
	oldHash := types.SumChunkHash(oldBody).String()
	oldStorageKey := hash2storageKey(oldHash)

	// First Put: fresh object, no prior chunks to free.
	mock.ExpectQuery("SELECT id FROM namespaces").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO chunks").WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("0"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM objects WHERE").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO objects").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec("INSERT INTO object_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err = p.Put(context.Background(), "mybucket", "mykey", "text/plain", oldBody)
	require.NoError(t, err)
	require.Contains(t, backend.chunks, oldStorageKey)

	newBody := []byte("goodbye world, this is different content")
	newHash := types.SumChunkHash(newBody).String()
	newStorageKey := hash2storageKey(newHash)

	// Second Put to the same (namespace, key): InsertObject must find the
	// prior object, free its chunk, and return that location so Put can
	// physically delete it.
	mock.ExpectQuery("SELECT id FROM namespaces").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO chunks").WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("0"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM objects WHERE").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectQuery("SELECT chunk_hash FROM object_chunks WHERE object_id").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_hash"}).AddRow(oldHash))
	mock.ExpectQuery("UPDATE chunks SET ref_count = ref_count - 1").
		WillReturnRows(sqlmock.NewRows([]string{"ref_count"}).AddRow(0))
	mock.ExpectQuery("SELECT provider_id, storage_key FROM chunks WHERE hash").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}).AddRow(int64(1), oldStorageKey))
	mock.ExpectQuery("SELECT provider_id, storage_key FROM chunk_replicas WHERE chunk_hash").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}))
	mock.ExpectExec("DELETE FROM chunks WHERE hash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM objects WHERE id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO objects").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(200))
	mock.ExpectExec("INSERT INTO object_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := p.Put(context.Background(), "mybucket", "mykey", "text/plain", newBody)
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.ObjectID)

	assert.NotContains(t, backend.chunks, oldStorageKey, "stale chunk must be physically deleted on overwrite")
	assert.Contains(t, backend.chunks, newStorageKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPipeline_GC_DryRun_RecordsAuditEventWithoutDeleting(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	backend := newMemBackend("mem")
	p := newTestPipeline(t, cat, backend)

	var buf bytes.Buffer
	dest := &audit.WriterDestination{Writer: &buf}
	p.SetAudit(audit.New(zap.NewNop(), dest))
	reg := metrics.New()
	p.SetMetrics(reg)

	mock.ExpectQuery("SELECT hash FROM chunks").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("deadbeef"))
	mock.ExpectQuery("SELECT cr.provider_id, cr.storage_key FROM chunk_replicas").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id", "storage_key"}))

	res, err := p.GC(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphanChunks)
	assert.True(t, res.DryRun)
	assert.Contains(t, buf.String(), `"kind":"gc_run"`)
	assert.Contains(t, buf.String(), `"dry_run":true`)
	require.NoError(t, mock.ExpectationsWereMet())
}
