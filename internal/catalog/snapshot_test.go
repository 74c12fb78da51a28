package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_SnapshotToBytes_IncludesMultipartAndBackupTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name FROM namespaces").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectQuery("SELECT id, name, type, bucket").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "bucket", "region", "weight"}))
	mock.ExpectQuery("SELECT hash, nonce, key_id").
		WillReturnRows(sqlmock.NewRows([]string{"hash", "nonce", "key_id", "provider_id", "storage_key", "size_plain", "size_encrypted", "size_compressed", "ref_count"}))
	mock.ExpectQuery("SELECT chunk_hash, provider_id, storage_key FROM chunk_replicas").
		WillReturnRows(sqlmock.NewRows([]string{"chunk_hash", "provider_id", "storage_key"}))
	mock.ExpectQuery("SELECT id, namespace_id, key, size, etag").
		WillReturnRows(sqlmock.NewRows([]string{"id", "namespace_id", "key", "size", "etag", "content_type", "chunk_count", "key_id"}))
	mock.ExpectQuery("SELECT object_id, chunk_hash, chunk_index, byte_offset FROM object_chunks").
		WillReturnRows(sqlmock.NewRows([]string{"object_id", "chunk_hash", "chunk_index", "byte_offset"}))
	mock.ExpectQuery("SELECT id, name, root_path, status, created_at, completed_at FROM backup_records").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "root_path", "status", "created_at", "completed_at"}).
			AddRow(int64(1), "nightly", "/data", "complete", time.Now(), nil))
	mock.ExpectQuery("SELECT id, backup_id, path, size, etag, mode, chunk_count, key_id FROM backup_files").
		WillReturnRows(sqlmock.NewRows([]string{"id", "backup_id", "path", "size", "etag", "mode", "chunk_count", "key_id"}))
	mock.ExpectQuery("SELECT file_id, chunk_hash, chunk_index, byte_offset FROM file_chunks").
		WillReturnRows(sqlmock.NewRows([]string{"file_id", "chunk_hash", "chunk_index", "byte_offset"}))
	mock.ExpectQuery("SELECT id, namespace_id, key, created_at FROM multipart_uploads").
		WillReturnRows(sqlmock.NewRows([]string{"id", "namespace_id", "key", "created_at"}).
			AddRow("upload-1", int64(1), "big-object", time.Now()))
	mock.ExpectQuery("SELECT upload_id, part_number, data, etag FROM multipart_parts").
		WillReturnRows(sqlmock.NewRows([]string{"upload_id", "part_number", "data", "etag"}).
			AddRow("upload-1", 1, []byte("part-bytes"), "etag-1"))
	mock.ExpectCommit()

	c := OpenDB(db)
	data, err := c.SnapshotToBytes(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, string(data), "multipart_uploads")
	assert.Contains(t, string(data), "upload-1")
	assert.Contains(t, string(data), "backup_records")
	assert.Contains(t, string(data), "nightly")
}

func TestCatalog_RestoreFromBytes_RestoresMultipartAndBackupRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	doc := snapshotDoc{
		MultipartUploads: []multipartUploadRow{{ID: "upload-1", NamespaceID: 1, Key: "big-object", CreatedAt: time.Now()}},
		MultipartParts:   []multipartPartRow{{UploadID: "upload-1", PartNumber: 1, Data: []byte("part-bytes"), ETag: "etag-1"}},
		BackupRecords:    []backupRecordRow{{ID: 1, Name: "nightly", RootPath: "/data", Status: "complete", CreatedAt: time.Now()}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, table := range []string{
		"object_chunks", "objects", "multipart_parts", "multipart_uploads",
		"file_chunks", "backup_files", "backup_records",
		"chunk_replicas", "chunks", "providers", "namespaces",
	} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO multipart_uploads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO multipart_parts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO backup_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := OpenDB(db)
	err = c.RestoreFromBytes(context.Background(), data)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
