package pgblob

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateTableSQL returns the DDL of the object table.
func CreateTableSQL(table string) string {
	name := pgx.Identifier{table}.Sanitize()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key          TEXT PRIMARY KEY,
	data         BYTEA NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	md5_hash     BYTEA,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`, name)
}

// Migrate creates the object table when it is missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool, opts ...Option) error {
	cfg := newConfig(opts...)
	if _, err := pool.Exec(ctx, CreateTableSQL(cfg.Table)); err != nil {
		return fmt.Errorf("pgblob: migrate %s: %w", cfg.Table, err)
	}
	return nil
}
