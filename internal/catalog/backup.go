package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// BackupRecord mirrors Object at the filesystem-backup granularity: one
// row per backup run.
type BackupRecord struct {
	ID          int64
	Name        string
	RootPath    string
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// CreateBackupRecord starts a new backup run and returns its id.
func (c *Catalog) CreateBackupRecord(ctx context.Context, name, rootPath string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO backup_records (name, root_path, status) VALUES ($1,$2,'running') RETURNING id
	`, name, rootPath).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap("catalog.CreateBackupRecord", apperrors.Database, "insert: %w", err)
	}
	return id, nil
}

// CompleteBackupRecord marks a backup run finished with the given status
// ("complete" or "failed").
func (c *Catalog) CompleteBackupRecord(ctx context.Context, backupID int64, status string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE backup_records SET status = $1, completed_at = now() WHERE id = $2
	`, status, backupID)
	if err != nil {
		return apperrors.Wrap("catalog.CompleteBackupRecord", apperrors.Database, "update %d: %w", backupID, err)
	}
	return nil
}

// GetBackupRecord loads a backup run by id.
func (c *Catalog) GetBackupRecord(ctx context.Context, backupID int64) (BackupRecord, error) {
	var (
		rec         BackupRecord
		completedAt sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, status, created_at, completed_at FROM backup_records WHERE id = $1
	`, backupID).Scan(&rec.ID, &rec.Name, &rec.RootPath, &rec.Status, &rec.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return BackupRecord{}, apperrors.Wrap("catalog.GetBackupRecord", apperrors.BackupNotFound, "backup %d not found", backupID)
	}
	if err != nil {
		return BackupRecord{}, apperrors.Wrap("catalog.GetBackupRecord", apperrors.Database, "query %d: %w", backupID, err)
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

// InsertBackupFile records one file's metadata within a backup run, along
// with its ordered chunk list, transactionally.
func (c *Catalog) InsertBackupFile(
	ctx context.Context,
	backupID int64, path string, size int64, etag string, mode uint32, keyID string,
	chunks []ObjectChunkRef,
) (fileID int64, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap("catalog.InsertBackupFile", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO backup_files (backup_id, path, size, etag, mode, chunk_count, key_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, backupID, path, size, etag, mode, len(chunks), keyID).Scan(&fileID)
	if err != nil {
		return 0, apperrors.Wrap("catalog.InsertBackupFile", apperrors.Database, "insert file: %w", err)
	}

	var offset int64
	for _, ch := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_chunks (file_id, chunk_hash, chunk_index, byte_offset)
			VALUES ($1,$2,$3,$4)
		`, fileID, ch.Hash, ch.Index, offset); err != nil {
			return 0, apperrors.Wrap("catalog.InsertBackupFile", apperrors.Database, "insert file_chunk %d: %w", ch.Index, err)
		}
		offset += ch.Length
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap("catalog.InsertBackupFile", apperrors.Database, "commit: %w", err)
	}
	return fileID, nil
}

// BackupFile is a resolved file row plus its ordered chunk list.
type BackupFile struct {
	ID     int64
	Path   string
	Size   int64
	ETag   string
	Mode   uint32
	KeyID  string
	Chunks []ObjectChunkRef
}

// ListBackupFiles returns every file recorded under a backup run, with
// chunk lists populated, ordered by path.
func (c *Catalog) ListBackupFiles(ctx context.Context, backupID int64) ([]BackupFile, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, path, size, etag, mode, key_id FROM backup_files
		WHERE backup_id = $1 ORDER BY path
	`, backupID)
	if err != nil {
		return nil, apperrors.Wrap("catalog.ListBackupFiles", apperrors.Database, "query: %w", err)
	}

	var files []BackupFile
	for rows.Next() {
		var f BackupFile
		if err := rows.Scan(&f.ID, &f.Path, &f.Size, &f.ETag, &f.Mode, &f.KeyID); err != nil {
			rows.Close()
			return nil, apperrors.Wrap("catalog.ListBackupFiles", apperrors.Database, "scan: %w", err)
		}
		files = append(files, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range files {
		chunks, err := c.listFileChunks(ctx, files[i].ID)
		if err != nil {
			return nil, err
		}
		files[i].Chunks = chunks
	}
	return files, nil
}

func (c *Catalog) listFileChunks(ctx context.Context, fileID int64) ([]ObjectChunkRef, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_hash, chunk_index FROM file_chunks WHERE file_id = $1 ORDER BY chunk_index
	`, fileID)
	if err != nil {
		return nil, apperrors.Wrap("catalog.listFileChunks", apperrors.Database, "query %d: %w", fileID, err)
	}
	defer rows.Close()

	var out []ObjectChunkRef
	for rows.Next() {
		var ref ObjectChunkRef
		if err := rows.Scan(&ref.Hash, &ref.Index); err != nil {
			return nil, apperrors.Wrap("catalog.listFileChunks", apperrors.Database, "scan: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
