package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// snapshotDoc is a consistent point-in-time serialization of every table
// the Raft state machine must replicate as part of a snapshot.
type snapshotDoc struct {
	Namespaces       []namespaceRow       `json:"namespaces"`
	Providers        []providerRow        `json:"providers"`
	Chunks           []chunkRow           `json:"chunks"`
	ChunkReplicas    []chunkReplicaRow    `json:"chunk_replicas"`
	Objects          []objectRow          `json:"objects"`
	ObjectChunks     []objectChunkRow     `json:"object_chunks"`
	BackupRecords    []backupRecordRow    `json:"backup_records"`
	BackupFiles      []backupFileRow      `json:"backup_files"`
	FileChunks       []fileChunkRow       `json:"file_chunks"`
	MultipartUploads []multipartUploadRow `json:"multipart_uploads"`
	MultipartParts   []multipartPartRow   `json:"multipart_parts"`
}

type namespaceRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type providerRow struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Weight uint32 `json:"weight"`
}

type chunkRow struct {
	Hash           string `json:"hash"`
	Nonce          []byte `json:"nonce"`
	KeyID          string `json:"key_id"`
	ProviderID     int64  `json:"provider_id"`
	StorageKey     string `json:"storage_key"`
	SizePlain      int64  `json:"size_plain"`
	SizeEncrypted  int64  `json:"size_encrypted"`
	SizeCompressed *int64 `json:"size_compressed,omitempty"`
	RefCount       int    `json:"ref_count"`
}

type chunkReplicaRow struct {
	ChunkHash  string `json:"chunk_hash"`
	ProviderID int64  `json:"provider_id"`
	StorageKey string `json:"storage_key"`
}

type objectRow struct {
	ID          int64  `json:"id"`
	NamespaceID int64  `json:"namespace_id"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ETag        string `json:"etag"`
	ContentType string `json:"content_type,omitempty"`
	ChunkCount  int    `json:"chunk_count"`
	KeyID       string `json:"key_id"`
}

type objectChunkRow struct {
	ObjectID   int64  `json:"object_id"`
	ChunkHash  string `json:"chunk_hash"`
	ChunkIndex int    `json:"chunk_index"`
	Offset     int64  `json:"offset"`
}

type backupRecordRow struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	RootPath    string     `json:"root_path"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type backupFileRow struct {
	ID         int64  `json:"id"`
	BackupID   int64  `json:"backup_id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag"`
	Mode       int64  `json:"mode"`
	ChunkCount int    `json:"chunk_count"`
	KeyID      string `json:"key_id"`
}

type fileChunkRow struct {
	FileID     int64  `json:"file_id"`
	ChunkHash  string `json:"chunk_hash"`
	ChunkIndex int    `json:"chunk_index"`
	Offset     int64  `json:"offset"`
}

type multipartUploadRow struct {
	ID          string    `json:"id"`
	NamespaceID int64     `json:"namespace_id"`
	Key         string    `json:"key"`
	CreatedAt   time.Time `json:"created_at"`
}

type multipartPartRow struct {
	UploadID   string `json:"upload_id"`
	PartNumber int    `json:"part_number"`
	Data       []byte `json:"data"`
	ETag       string `json:"etag"`
}

// SnapshotToBytes produces a consistent point-in-time serialization of the
// entire catalog for Raft snapshotting.
func (c *Catalog) SnapshotToBytes(ctx context.Context) ([]byte, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	var doc snapshotDoc

	nsRows, err := tx.QueryContext(ctx, `SELECT id, name FROM namespaces`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "namespaces: %w", err)
	}
	for nsRows.Next() {
		var r namespaceRow
		if err := nsRows.Scan(&r.ID, &r.Name); err != nil {
			nsRows.Close()
			return nil, err
		}
		doc.Namespaces = append(doc.Namespaces, r)
	}
	nsRows.Close()

	provRows, err := tx.QueryContext(ctx, `SELECT id, name, type, bucket, coalesce(region,''), weight FROM providers`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "providers: %w", err)
	}
	for provRows.Next() {
		var r providerRow
		if err := provRows.Scan(&r.ID, &r.Name, &r.Type, &r.Bucket, &r.Region, &r.Weight); err != nil {
			provRows.Close()
			return nil, err
		}
		doc.Providers = append(doc.Providers, r)
	}
	provRows.Close()

	chunkRows, err := tx.QueryContext(ctx,
		`SELECT hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count FROM chunks`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "chunks: %w", err)
	}
	for chunkRows.Next() {
		var r chunkRow
		if err := chunkRows.Scan(&r.Hash, &r.Nonce, &r.KeyID, &r.ProviderID, &r.StorageKey,
			&r.SizePlain, &r.SizeEncrypted, &r.SizeCompressed, &r.RefCount); err != nil {
			chunkRows.Close()
			return nil, err
		}
		doc.Chunks = append(doc.Chunks, r)
	}
	chunkRows.Close()

	replicaRows, err := tx.QueryContext(ctx, `SELECT chunk_hash, provider_id, storage_key FROM chunk_replicas`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "chunk_replicas: %w", err)
	}
	for replicaRows.Next() {
		var r chunkReplicaRow
		if err := replicaRows.Scan(&r.ChunkHash, &r.ProviderID, &r.StorageKey); err != nil {
			replicaRows.Close()
			return nil, err
		}
		doc.ChunkReplicas = append(doc.ChunkReplicas, r)
	}
	replicaRows.Close()

	objRows, err := tx.QueryContext(ctx,
		`SELECT id, namespace_id, key, size, etag, coalesce(content_type,''), chunk_count, key_id FROM objects`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "objects: %w", err)
	}
	for objRows.Next() {
		var r objectRow
		if err := objRows.Scan(&r.ID, &r.NamespaceID, &r.Key, &r.Size, &r.ETag, &r.ContentType, &r.ChunkCount, &r.KeyID); err != nil {
			objRows.Close()
			return nil, err
		}
		doc.Objects = append(doc.Objects, r)
	}
	objRows.Close()

	ocRows, err := tx.QueryContext(ctx, `SELECT object_id, chunk_hash, chunk_index, byte_offset FROM object_chunks`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "object_chunks: %w", err)
	}
	for ocRows.Next() {
		var r objectChunkRow
		if err := ocRows.Scan(&r.ObjectID, &r.ChunkHash, &r.ChunkIndex, &r.Offset); err != nil {
			ocRows.Close()
			return nil, err
		}
		doc.ObjectChunks = append(doc.ObjectChunks, r)
	}
	ocRows.Close()

	brRows, err := tx.QueryContext(ctx,
		`SELECT id, name, root_path, status, created_at, completed_at FROM backup_records`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "backup_records: %w", err)
	}
	for brRows.Next() {
		var r backupRecordRow
		var completedAt sql.NullTime
		if err := brRows.Scan(&r.ID, &r.Name, &r.RootPath, &r.Status, &r.CreatedAt, &completedAt); err != nil {
			brRows.Close()
			return nil, err
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		doc.BackupRecords = append(doc.BackupRecords, r)
	}
	brRows.Close()

	bfRows, err := tx.QueryContext(ctx,
		`SELECT id, backup_id, path, size, etag, mode, chunk_count, key_id FROM backup_files`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "backup_files: %w", err)
	}
	for bfRows.Next() {
		var r backupFileRow
		if err := bfRows.Scan(&r.ID, &r.BackupID, &r.Path, &r.Size, &r.ETag, &r.Mode, &r.ChunkCount, &r.KeyID); err != nil {
			bfRows.Close()
			return nil, err
		}
		doc.BackupFiles = append(doc.BackupFiles, r)
	}
	bfRows.Close()

	fcRows, err := tx.QueryContext(ctx, `SELECT file_id, chunk_hash, chunk_index, byte_offset FROM file_chunks`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "file_chunks: %w", err)
	}
	for fcRows.Next() {
		var r fileChunkRow
		if err := fcRows.Scan(&r.FileID, &r.ChunkHash, &r.ChunkIndex, &r.Offset); err != nil {
			fcRows.Close()
			return nil, err
		}
		doc.FileChunks = append(doc.FileChunks, r)
	}
	fcRows.Close()

	muRows, err := tx.QueryContext(ctx, `SELECT id, namespace_id, key, created_at FROM multipart_uploads`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "multipart_uploads: %w", err)
	}
	for muRows.Next() {
		var r multipartUploadRow
		if err := muRows.Scan(&r.ID, &r.NamespaceID, &r.Key, &r.CreatedAt); err != nil {
			muRows.Close()
			return nil, err
		}
		doc.MultipartUploads = append(doc.MultipartUploads, r)
	}
	muRows.Close()

	mpRows, err := tx.QueryContext(ctx, `SELECT upload_id, part_number, data, etag FROM multipart_parts`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "multipart_parts: %w", err)
	}
	for mpRows.Next() {
		var r multipartPartRow
		if err := mpRows.Scan(&r.UploadID, &r.PartNumber, &r.Data, &r.ETag); err != nil {
			mpRows.Close()
			return nil, err
		}
		doc.MultipartParts = append(doc.MultipartParts, r)
	}
	mpRows.Close()

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Database, "commit: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Wrap("catalog.SnapshotToBytes", apperrors.Serialization, "marshal: %w", err)
	}
	return data, nil
}

// RestoreFromBytes verifies and atomically replaces the catalog's content
// with a previously-produced snapshot.
func (c *Catalog) RestoreFromBytes(ctx context.Context, data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Serialization, "unmarshal: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM object_chunks", "DELETE FROM objects",
		"DELETE FROM multipart_parts", "DELETE FROM multipart_uploads",
		"DELETE FROM file_chunks", "DELETE FROM backup_files", "DELETE FROM backup_records",
		"DELETE FROM chunk_replicas", "DELETE FROM chunks",
		"DELETE FROM providers", "DELETE FROM namespaces",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "truncate: %w", err)
		}
	}

	for _, r := range doc.Namespaces {
		if _, err := tx.ExecContext(ctx, `INSERT INTO namespaces (id, name) VALUES ($1,$2)`, r.ID, r.Name); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "namespace %d: %w", r.ID, err)
		}
	}
	for _, r := range doc.Providers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO providers (id, name, type, bucket, region, weight) VALUES ($1,$2,$3,$4,$5,$6)`,
			r.ID, r.Name, r.Type, r.Bucket, nullable(r.Region), r.Weight); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "provider %d: %w", r.ID, err)
		}
	}
	for _, r := range doc.Chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, r.Hash, r.Nonce, r.KeyID, r.ProviderID, r.StorageKey, r.SizePlain, r.SizeEncrypted, r.SizeCompressed, r.RefCount); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "chunk %s: %w", r.Hash, err)
		}
	}
	for _, r := range doc.ChunkReplicas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_replicas (chunk_hash, provider_id, storage_key) VALUES ($1,$2,$3)`,
			r.ChunkHash, r.ProviderID, r.StorageKey); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "chunk_replica %s: %w", r.ChunkHash, err)
		}
	}
	for _, r := range doc.Objects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objects (id, namespace_id, key, size, etag, content_type, chunk_count, key_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, r.ID, r.NamespaceID, r.Key, r.Size, r.ETag, nullable(r.ContentType), r.ChunkCount, r.KeyID); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "object %d: %w", r.ID, err)
		}
	}
	for _, r := range doc.ObjectChunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO object_chunks (object_id, chunk_hash, chunk_index, byte_offset) VALUES ($1,$2,$3,$4)`,
			r.ObjectID, r.ChunkHash, r.ChunkIndex, r.Offset); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "object_chunk %d/%d: %w", r.ObjectID, r.ChunkIndex, err)
		}
	}
	for _, r := range doc.MultipartUploads {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO multipart_uploads (id, namespace_id, key, created_at) VALUES ($1,$2,$3,$4)`,
			r.ID, r.NamespaceID, r.Key, r.CreatedAt); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "multipart_upload %s: %w", r.ID, err)
		}
	}
	for _, r := range doc.MultipartParts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO multipart_parts (upload_id, part_number, data, etag) VALUES ($1,$2,$3,$4)`,
			r.UploadID, r.PartNumber, r.Data, r.ETag); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "multipart_part %s/%d: %w", r.UploadID, r.PartNumber, err)
		}
	}
	for _, r := range doc.BackupRecords {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_records (id, name, root_path, status, created_at, completed_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			r.ID, r.Name, r.RootPath, r.Status, r.CreatedAt, r.CompletedAt); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "backup_record %d: %w", r.ID, err)
		}
	}
	for _, r := range doc.BackupFiles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backup_files (id, backup_id, path, size, etag, mode, chunk_count, key_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, r.ID, r.BackupID, r.Path, r.Size, r.ETag, r.Mode, r.ChunkCount, r.KeyID); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "backup_file %d: %w", r.ID, err)
		}
	}
	for _, r := range doc.FileChunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_chunks (file_id, chunk_hash, chunk_index, byte_offset) VALUES ($1,$2,$3,$4)`,
			r.FileID, r.ChunkHash, r.ChunkIndex, r.Offset); err != nil {
			return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "file_chunk %d/%d: %w", r.FileID, r.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap("catalog.RestoreFromBytes", apperrors.Database, "commit: %w", err)
	}
	return nil
}
