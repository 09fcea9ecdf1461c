package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enverbisevac/actors/lease"
)

const DefaultTable = "entitylocks"

// Store implements lease.Store on a PostgreSQL table. A lease is a row whose
// token is set and whose expires_at lies in the future.
type Store struct {
	config Config
	pool   *pgxpool.Pool
	table  string
}

// New creates a new lease store using pgxpool.
func New(pool *pgxpool.Pool, options ...Option) *Store {
	config := Config{
		Table: DefaultTable,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Store{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.Table}.Sanitize(),
	}
}

// CreateTableSQL returns the DDL for the lease table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	resource   TEXT PRIMARY KEY,
	token      TEXT,
	expires_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{table}.Sanitize())
}

// Migrate creates the lease table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, CreateTableSQL(s.config.Table)); err != nil {
		return fmt.Errorf("pgx: create lease table: %w", err)
	}
	return nil
}

// Ensure inserts an unleased row for resource.
func (s *Store) Ensure(ctx context.Context, resource string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO "+s.table+" (resource) VALUES ($1) ON CONFLICT (resource) DO NOTHING",
		resource)
	if err != nil {
		return fmt.Errorf("pgx: ensure %s: %w", resource, err)
	}
	return nil
}

// Acquire takes the row over when it has no live lease.
func (s *Store) Acquire(ctx context.Context, resource string, d time.Duration) (string, error) {
	token := uuid.NewString()

	var got string
	err := s.pool.QueryRow(ctx, `INSERT INTO `+s.table+` AS l (resource, token, expires_at, updated_at)
VALUES ($1, $2, now() + make_interval(secs => $3::double precision), now())
ON CONFLICT (resource) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, updated_at = now()
WHERE l.token IS NULL OR l.expires_at <= now()
RETURNING l.token`, resource, token, d.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("pgx: %s: %w", resource, lease.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("pgx: acquire %s: %w", resource, err)
	}

	return got, nil
}

// Renew moves expires_at forward by d.
func (s *Store) Renew(ctx context.Context, resource, token string, d time.Duration) error {
	tag, err := s.pool.Exec(ctx, `UPDATE `+s.table+`
SET expires_at = now() + make_interval(secs => $3::double precision), updated_at = now()
WHERE resource = $1 AND token = $2 AND expires_at > now()`, resource, token, d.Seconds())
	if err != nil {
		return fmt.Errorf("pgx: renew %s: %w", resource, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgx: renew %s: %w", resource, lease.ErrNotHeld)
	}
	return nil
}

// Release clears the token. The row stays as placeholder.
func (s *Store) Release(ctx context.Context, resource, token string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE `+s.table+`
SET token = NULL, expires_at = now(), updated_at = now()
WHERE resource = $1 AND token = $2 AND expires_at > now()`, resource, token)
	if err != nil {
		return fmt.Errorf("pgx: release %s: %w", resource, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgx: release %s: %w", resource, lease.ErrNotHeld)
	}
	return nil
}
