package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/distributor"
	"github.com/FairForge/vaultaire/internal/keys"
	"github.com/FairForge/vaultaire/internal/pipeline"
	"github.com/FairForge/vaultaire/internal/storage"
	"github.com/FairForge/vaultaire/internal/types"
	"github.com/FairForge/vaultaire/internal/vchunk"
)

type memBackend struct {
	mu     sync.Mutex
	chunks map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{chunks: make(map[string][]byte)} }

func (m *memBackend) UploadChunk(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[key] = append([]byte(nil), data...)
	return nil
}
func (m *memBackend) DownloadChunk(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[key], nil
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
func (m *memBackend) Name() string                                     { return "mem" }

var _ storage.Backend = (*memBackend)(nil)

type fakeKeyProvider struct{ key keys.ManagedKey }

func newFakeKeyProvider() *fakeKeyProvider {
	var k keys.ManagedKey
	k.ID = "key1"
	k.CreatedAt = time.Unix(0, 0)
	return &fakeKeyProvider{key: k}
}

func (f *fakeKeyProvider) CurrentKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) KeyByID(context.Context, string) (keys.ManagedKey, error) {
	return f.key, nil
}
func (f *fakeKeyProvider) CreateKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) RotateKey(context.Context) (keys.ManagedKey, error) { return f.key, nil }
func (f *fakeKeyProvider) ListKeyIDs(context.Context) ([]string, error)      { return []string{f.key.ID}, nil }

var _ keys.Provider = (*fakeKeyProvider)(nil)

func newTestPipeline(t *testing.T, cat *catalog.Catalog, backend storage.Backend) *pipeline.Pipeline {
	t.Helper()
	chunker, err := vchunk.NewFixedChunker(1024)
	require.NoError(t, err)
	compressor, err := vchunk.NewCompressor(vchunk.CompressionNone)
	require.NoError(t, err)
	dist, err := distributor.New(distributor.RoundRobin, []types.Provider{{ID: 1, Weight: 1}})
	require.NoError(t, err)
	return pipeline.New(chunker, compressor, newFakeKeyProvider(), dist,
		map[int64]storage.Backend{1: backend}, cat, pipeline.Config{ReplicationFactor: 1}, zap.NewNop())
}

func TestRunner_Run_BacksUpOneFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()
	cat := catalog.OpenDB(sqldb)
	backend := newMemBackend()
	pl := newTestPipeline(t, cat, backend)
	r := New(cat, pl, zap.NewNop())

	mock.ExpectQuery("INSERT INTO backup_records").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO chunks").WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow("0"))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO backup_files").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectExec("INSERT INTO file_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE backup_records").WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT id, name, root_path, status, created_at, completed_at FROM backup_records").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "root_path", "status", "created_at", "completed_at"}).
			AddRow(1, "nightly", dir, "complete", time.Now(), nil))

	rec, sum, err := r.BackupPath(context.Background(), "nightly", dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, 1, sum.FileCount)
	assert.Equal(t, 0, sum.FailCount)
	assert.NotEmpty(t, backend.chunks)
	require.NoError(t, mock.ExpectationsWereMet())
}
