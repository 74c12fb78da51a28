// Package catalog is the single source of truth for vaultaire's metadata:
// namespaces, providers, chunks with reference counting, objects, backups,
// and multipart staging. It is backed by PostgreSQL via database/sql and
// github.com/lib/pq.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// Config holds the PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// Catalog wraps the PostgreSQL connection pool backing the metadata store.
type Catalog struct {
	db *sql.DB
}

// Open connects to PostgreSQL and configures the pool the way a
// long-lived metadata store needs: bounded, recycled connections.
func Open(cfg Config) (*Catalog, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap("catalog.Open", apperrors.Database, "open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Catalog{db: db}, nil
}

// OpenDB wraps an already-open *sql.DB, e.g. one built over sqlmock in
// tests.
func OpenDB(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migrate creates every table the catalog needs if it does not already
// exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS namespaces (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS providers (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			bucket TEXT NOT NULL,
			region TEXT,
			weight INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			hash TEXT PRIMARY KEY,
			nonce BYTEA NOT NULL,
			key_id TEXT NOT NULL,
			provider_id BIGINT NOT NULL REFERENCES providers(id),
			storage_key TEXT NOT NULL,
			size_plain BIGINT NOT NULL,
			size_encrypted BIGINT NOT NULL,
			size_compressed BIGINT,
			ref_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_replicas (
			chunk_hash TEXT NOT NULL REFERENCES chunks(hash) ON DELETE CASCADE,
			provider_id BIGINT NOT NULL REFERENCES providers(id),
			storage_key TEXT NOT NULL,
			PRIMARY KEY (chunk_hash, provider_id)
		)`,
		`CREATE TABLE IF NOT EXISTS objects (
			id BIGSERIAL PRIMARY KEY,
			namespace_id BIGINT NOT NULL REFERENCES namespaces(id),
			key TEXT NOT NULL,
			size BIGINT NOT NULL,
			etag TEXT NOT NULL,
			content_type TEXT,
			chunk_count INTEGER NOT NULL,
			key_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (namespace_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS object_chunks (
			object_id BIGINT NOT NULL REFERENCES objects(id) ON DELETE CASCADE,
			chunk_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			byte_offset BIGINT NOT NULL,
			UNIQUE (object_id, chunk_index)
		)`,
		`CREATE TABLE IF NOT EXISTS backup_records (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			root_path TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS backup_files (
			id BIGSERIAL PRIMARY KEY,
			backup_id BIGINT NOT NULL REFERENCES backup_records(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			size BIGINT NOT NULL,
			etag TEXT NOT NULL,
			mode INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			key_id TEXT NOT NULL,
			UNIQUE (backup_id, path)
		)`,
		`CREATE TABLE IF NOT EXISTS file_chunks (
			file_id BIGINT NOT NULL REFERENCES backup_files(id) ON DELETE CASCADE,
			chunk_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			byte_offset BIGINT NOT NULL,
			UNIQUE (file_id, chunk_index)
		)`,
		`CREATE TABLE IF NOT EXISTS multipart_uploads (
			id UUID PRIMARY KEY,
			namespace_id BIGINT NOT NULL REFERENCES namespaces(id),
			key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS multipart_parts (
			upload_id UUID NOT NULL REFERENCES multipart_uploads(id) ON DELETE CASCADE,
			part_number INTEGER NOT NULL,
			data BYTEA NOT NULL,
			etag TEXT NOT NULL,
			PRIMARY KEY (upload_id, part_number)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap("catalog.Migrate", apperrors.Database, "create table: %w", err)
		}
	}
	return nil
}
