// Package backup walks a filesystem tree and stores every regular file
// through the same chunk/compress/encrypt/dedup/distribute path as an
// object PUT, recording per-file metadata in the catalog's backup tables
// instead of the objects table.
package backup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/pipeline"
)

// Runner drives filesystem backup and restore over a catalog and the
// chunk-level pipeline primitives.
type Runner struct {
	cat    *catalog.Catalog
	pl     *pipeline.Pipeline
	logger *zap.Logger
}

// New builds a Runner.
func New(cat *catalog.Catalog, pl *pipeline.Pipeline, logger *zap.Logger) *Runner {
	return &Runner{cat: cat, pl: pl, logger: logger}
}

// Summary reports file counts for a completed backup run.
type Summary struct {
	FileCount int
	FailCount int
}

// BackupPath walks root, storing each regular file's content and recording
// a backup_files row for it. Per-file errors are logged and counted; the
// run still completes and is marked "complete" unless walking the tree
// itself fails, in which case it is marked "failed".
func (r *Runner) BackupPath(ctx context.Context, name, root string) (catalog.BackupRecord, Summary, error) {
	const op = "backup.BackupPath"

	backupID, err := r.cat.CreateBackupRecord(ctx, name, root)
	if err != nil {
		return catalog.BackupRecord{}, Summary{}, err
	}

	var sum Summary
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := r.backupFile(ctx, backupID, root, path, d); err != nil {
			r.logger.Warn("backup file failed", zap.String("path", path), zap.Error(err))
			sum.FailCount++
			return nil
		}
		sum.FileCount++
		return nil
	})

	status := "complete"
	if walkErr != nil {
		status = "failed"
	}
	if err := r.cat.CompleteBackupRecord(ctx, backupID, status); err != nil {
		r.logger.Warn("mark backup record complete failed", zap.Int64("backup_id", backupID), zap.Error(err))
	}
	if walkErr != nil {
		return catalog.BackupRecord{}, sum, apperrors.Wrap(op, apperrors.Internal, "walk %s: %w", root, walkErr)
	}

	rec, err := r.cat.GetBackupRecord(ctx, backupID)
	if err != nil {
		return catalog.BackupRecord{}, sum, err
	}
	return rec, sum, nil
}

func (r *Runner) backupFile(ctx context.Context, backupID int64, rootPath, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	relPath, err := filepath.Rel(rootPath, path)
	if err != nil {
		relPath = path
	}

	etag, keyID, refs, err := r.pl.ChunkAndStore(ctx, data)
	if err != nil {
		return err
	}

	_, err = r.cat.InsertBackupFile(ctx, backupID, relPath, info.Size(), etag, uint32(info.Mode()), keyID, refs)
	return err
}

// VerifyReport lists files that failed integrity verification.
type VerifyReport struct {
	OKCount   int
	Mismatches []string
}

// VerifyBackup re-downloads and re-verifies every file recorded in a
// backup run (via the pipeline's own hash check on each chunk) without
// writing anything to disk.
func (r *Runner) VerifyBackup(ctx context.Context, backupID int64) (VerifyReport, error) {
	files, err := r.cat.ListBackupFiles(ctx, backupID)
	if err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	for _, f := range files {
		if _, err := r.pl.GetChunks(ctx, f.Chunks); err != nil {
			r.logger.Warn("backup verify failed", zap.String("path", f.Path), zap.Error(err))
			report.Mismatches = append(report.Mismatches, f.Path)
			continue
		}
		report.OKCount++
	}
	return report, nil
}

// RestorePath writes every file recorded in a backup run back under
// destRoot, preserving relative paths and file mode.
func (r *Runner) RestorePath(ctx context.Context, backupID int64, destRoot string) (Summary, error) {
	files, err := r.cat.ListBackupFiles(ctx, backupID)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, f := range files {
		data, err := r.pl.GetChunks(ctx, f.Chunks)
		if err != nil {
			r.logger.Warn("restore file failed", zap.String("path", f.Path), zap.Error(err))
			sum.FailCount++
			continue
		}
		dest := filepath.Join(destRoot, f.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			r.logger.Warn("restore mkdir failed", zap.String("path", dest), zap.Error(err))
			sum.FailCount++
			continue
		}
		if err := os.WriteFile(dest, data, os.FileMode(f.Mode)); err != nil {
			r.logger.Warn("restore write failed", zap.String("path", dest), zap.Error(err))
			sum.FailCount++
			continue
		}
		sum.FileCount++
	}
	return sum, nil
}
