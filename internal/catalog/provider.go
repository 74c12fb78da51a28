package catalog

import (
	"context"
	"database/sql"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/types"
)

// InsertProvider inserts a provider row and returns its id.
func (c *Catalog) InsertProvider(ctx context.Context, p types.Provider) (int64, error) {
	var id int64
	weight := p.Weight
	if weight < 1 {
		weight = 1
	}
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO providers (name, type, bucket, region, weight) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		p.Name, string(p.Type), p.Bucket, nullable(p.Region), weight).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap("catalog.InsertProvider", apperrors.Duplicate, "insert %q: %w", p.Name, err)
	}
	return id, nil
}

// GetProvider loads a provider by id.
func (c *Catalog) GetProvider(ctx context.Context, id int64) (types.Provider, error) {
	var (
		p      types.Provider
		typ    string
		region sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, type, bucket, region, weight, created_at FROM providers WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &typ, &p.Bucket, &region, &p.Weight, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return types.Provider{}, apperrors.Wrap("catalog.GetProvider", apperrors.ProviderNotFound, "provider %d not found", id)
	}
	if err != nil {
		return types.Provider{}, apperrors.Wrap("catalog.GetProvider", apperrors.Database, "query %d: %w", id, err)
	}
	p.Type = types.ProviderType(typ)
	p.Region = region.String
	return p, nil
}

// ListProviders returns every configured provider, ordered by id.
func (c *Catalog) ListProviders(ctx context.Context) ([]types.Provider, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, type, bucket, region, weight, created_at FROM providers ORDER BY id`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.ListProviders", apperrors.Database, "query: %w", err)
	}
	defer rows.Close()

	var out []types.Provider
	for rows.Next() {
		var (
			p      types.Provider
			typ    string
			region sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &typ, &p.Bucket, &region, &p.Weight, &p.CreatedAt); err != nil {
			return nil, apperrors.Wrap("catalog.ListProviders", apperrors.Database, "scan: %w", err)
		}
		p.Type = types.ProviderType(typ)
		p.Region = region.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProvider removes a provider, refusing if any chunk or chunk
// replica still references it.
func (c *Catalog) DeleteProvider(ctx context.Context, id int64) error {
	var refs int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chunks WHERE provider_id = $1`, id).Scan(&refs)
	if err != nil {
		return apperrors.Wrap("catalog.DeleteProvider", apperrors.Database, "count refs: %w", err)
	}
	var replicaRefs int
	err = c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chunk_replicas WHERE provider_id = $1`, id).Scan(&replicaRefs)
	if err != nil {
		return apperrors.Wrap("catalog.DeleteProvider", apperrors.Database, "count replica refs: %w", err)
	}
	if refs+replicaRefs > 0 {
		return apperrors.Wrap("catalog.DeleteProvider", apperrors.InvalidInput,
			"provider %d still referenced by %d chunks and %d chunk replicas", id, refs, replicaRefs)
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap("catalog.DeleteProvider", apperrors.Database, "delete %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.Wrap("catalog.DeleteProvider", apperrors.ProviderNotFound, "provider %d not found", id)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
