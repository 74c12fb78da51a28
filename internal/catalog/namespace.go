package catalog

import (
	"context"
	"database/sql"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// CreateNamespace inserts a new namespace and returns its id.
func (c *Catalog) CreateNamespace(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO namespaces (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap("catalog.CreateNamespace", apperrors.Duplicate, "insert %q: %w", name, err)
	}
	return id, nil
}

// DeleteNamespace removes a namespace by name.
func (c *Catalog) DeleteNamespace(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM namespaces WHERE name = $1`, name)
	if err != nil {
		return apperrors.Wrap("catalog.DeleteNamespace", apperrors.Database, "delete %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.Wrap("catalog.DeleteNamespace", apperrors.NotFound, "namespace %q not found", name)
	}
	return nil
}

// GetNamespaceID resolves a namespace name to its id.
func (c *Catalog) GetNamespaceID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `SELECT id FROM namespaces WHERE name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, apperrors.Wrap("catalog.GetNamespaceID", apperrors.NotFound, "namespace %q not found", name)
	}
	if err != nil {
		return 0, apperrors.Wrap("catalog.GetNamespaceID", apperrors.Database, "query %q: %w", name, err)
	}
	return id, nil
}

// GetNamespaceName resolves a namespace id to its name.
func (c *Catalog) GetNamespaceName(ctx context.Context, id int64) (string, error) {
	var name string
	err := c.db.QueryRowContext(ctx, `SELECT name FROM namespaces WHERE id = $1`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", apperrors.Wrap("catalog.GetNamespaceName", apperrors.NotFound, "namespace %d not found", id)
	}
	if err != nil {
		return "", apperrors.Wrap("catalog.GetNamespaceName", apperrors.Database, "query %d: %w", id, err)
	}
	return name, nil
}

// Namespace is a listed namespace row.
type Namespace struct {
	ID   int64
	Name string
}

// ListNamespaces returns every namespace, ordered by name.
func (c *Catalog) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM namespaces ORDER BY name`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.ListNamespaces", apperrors.Database, "query: %w", err)
	}
	defer rows.Close()

	var out []Namespace
	for rows.Next() {
		var ns Namespace
		if err := rows.Scan(&ns.ID, &ns.Name); err != nil {
			return nil, apperrors.Wrap("catalog.ListNamespaces", apperrors.Database, "scan: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}
