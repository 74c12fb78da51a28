package catalog

import (
	"context"
	"database/sql"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// ObjectChunkRef is one (hash, index, length) entry produced while
// chunking a PUT body, awaiting insertion once the object row exists.
type ObjectChunkRef struct {
	Hash   string
	Index  int
	Length int64
}

// Object is a resolved object row. Its ordered chunk list is returned
// separately by GetObject.
type Object struct {
	ID          int64
	NamespaceID int64
	Key         string
	Size        int64
	ETag        string
	ContentType string
	ChunkCount  int
	KeyID       string
}

// InsertObject upserts an object: if (ns,key) already exists, the prior
// object is deleted first (decrementing chunk refs, collecting physical
// deletion locations) before the new row and its chunk mappings are
// inserted, all inside one transaction so no partially-written object is
// ever visible.
func (c *Catalog) InsertObject(
	ctx context.Context,
	namespaceID int64, key string, size int64, etag, contentType string, keyID string,
	chunks []ObjectChunkRef,
) (objectID int64, staleLocations []ChunkLocation, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, apperrors.Wrap("catalog.InsertObject", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	staleLocations, err = deleteObjectByNsKeyTx(ctx, tx, namespaceID, key)
	if err != nil {
		return 0, nil, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO objects (namespace_id, key, size, etag, content_type, chunk_count, key_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, namespaceID, key, size, etag, nullable(contentType), len(chunks), keyID).Scan(&objectID)
	if err != nil {
		return 0, nil, apperrors.Wrap("catalog.InsertObject", apperrors.Database, "insert object: %w", err)
	}

	var offset int64
	for _, ch := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_chunks (object_id, chunk_hash, chunk_index, byte_offset)
			VALUES ($1,$2,$3,$4)
		`, objectID, ch.Hash, ch.Index, offset); err != nil {
			return 0, nil, apperrors.Wrap("catalog.InsertObject", apperrors.Database, "insert object_chunk %d: %w", ch.Index, err)
		}
		offset += ch.Length
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, apperrors.Wrap("catalog.InsertObject", apperrors.Database, "commit: %w", err)
	}
	return objectID, staleLocations, nil
}

// DeleteObjectByNsKey deletes the object at (ns,key), decrementing every
// referenced chunk's ref_count, and returns the physical locations that
// now require deletion.
func (c *Catalog) DeleteObjectByNsKey(ctx context.Context, namespaceID int64, key string) ([]ChunkLocation, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap("catalog.DeleteObjectByNsKey", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	locs, err := deleteObjectByNsKeyTx(ctx, tx, namespaceID, key)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap("catalog.DeleteObjectByNsKey", apperrors.Database, "commit: %w", err)
	}
	return locs, nil
}

func deleteObjectByNsKeyTx(ctx context.Context, tx *sql.Tx, namespaceID int64, key string) ([]ChunkLocation, error) {
	var objectID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM objects WHERE namespace_id = $1 AND key = $2`, namespaceID, key).Scan(&objectID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap("catalog.deleteObjectByNsKey", apperrors.Database, "lookup %d/%s: %w", namespaceID, key, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT chunk_hash FROM object_chunks WHERE object_id = $1 ORDER BY chunk_index`, objectID)
	if err != nil {
		return nil, apperrors.Wrap("catalog.deleteObjectByNsKey", apperrors.Database, "list chunks: %w", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, apperrors.Wrap("catalog.deleteObjectByNsKey", apperrors.Database, "scan chunk: %w", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var freed []ChunkLocation
	for _, h := range hashes {
		locs, err := decrementChunkRefTx(ctx, tx, h)
		if err != nil {
			return nil, err
		}
		freed = append(freed, locs...)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = $1`, objectID); err != nil {
		return nil, apperrors.Wrap("catalog.deleteObjectByNsKey", apperrors.Database, "delete object %d: %w", objectID, err)
	}
	return freed, nil
}

// decrementChunkRefTx is DecrementChunkRef's logic reused within a caller's
// transaction instead of opening its own.
func decrementChunkRefTx(ctx context.Context, tx *sql.Tx, hash string) ([]ChunkLocation, error) {
	var refCount int
	err := tx.QueryRowContext(ctx,
		`UPDATE chunks SET ref_count = ref_count - 1 WHERE hash = $1 RETURNING ref_count`, hash).Scan(&refCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap("catalog.decrementChunkRefTx", apperrors.Database, "decrement %s: %w", hash, err)
	}
	if refCount > 0 {
		return nil, nil
	}

	locs, err := collectLocations(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE hash = $1`, hash); err != nil {
		return nil, apperrors.Wrap("catalog.decrementChunkRefTx", apperrors.Database, "delete chunk %s: %w", hash, err)
	}
	return locs, nil
}

// GetObject resolves an object by (ns,key) together with its ordered
// chunk list.
func (c *Catalog) GetObject(ctx context.Context, namespaceID int64, key string) (Object, []ObjectChunkRef, error) {
	var (
		obj         Object
		contentType sql.NullString
	)
	obj.NamespaceID = namespaceID
	obj.Key = key

	err := c.db.QueryRowContext(ctx, `
		SELECT id, size, etag, content_type, chunk_count, key_id
		FROM objects WHERE namespace_id = $1 AND key = $2
	`, namespaceID, key).Scan(&obj.ID, &obj.Size, &obj.ETag, &contentType, &obj.ChunkCount, &obj.KeyID)
	if err == sql.ErrNoRows {
		return Object{}, nil, apperrors.Wrap("catalog.GetObject", apperrors.NotFound, "object %d/%s not found", namespaceID, key)
	}
	if err != nil {
		return Object{}, nil, apperrors.Wrap("catalog.GetObject", apperrors.Database, "query: %w", err)
	}
	obj.ContentType = contentType.String

	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_hash, chunk_index, byte_offset FROM object_chunks
		WHERE object_id = $1 ORDER BY chunk_index
	`, obj.ID)
	if err != nil {
		return Object{}, nil, apperrors.Wrap("catalog.GetObject", apperrors.Database, "query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ObjectChunkRef
	for rows.Next() {
		var (
			ref    ObjectChunkRef
			offset int64
		)
		if err := rows.Scan(&ref.Hash, &ref.Index, &offset); err != nil {
			return Object{}, nil, apperrors.Wrap("catalog.GetObject", apperrors.Database, "scan chunk: %w", err)
		}
		chunks = append(chunks, ref)
	}
	return obj, chunks, rows.Err()
}
