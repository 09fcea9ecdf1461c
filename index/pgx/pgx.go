package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enverbisevac/actors/cache"
	"github.com/enverbisevac/actors/cache/inmem"
	"github.com/enverbisevac/actors/index"
)

const DefaultTablePrefix = "actor"

// Store implements index.Store with one PostgreSQL table per record kind.
type Store struct {
	config Config
	pool   *pgxpool.Pool
	closer func() error
}

func New(pool *pgxpool.Pool, options ...Option) *Store {
	config := Config{
		TablePrefix: DefaultTablePrefix,
		TableTTL:    10 * time.Minute,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	s := &Store{
		config: config,
		pool:   pool,
		closer: func() error { return nil },
	}
	if s.config.Tables == nil {
		tables := inmem.New[string]()
		s.config.Tables = tables
		s.closer = tables.Close
	}
	return s
}

// Close releases the private table cache. The pool is left open.
func (s *Store) Close() error {
	return s.closer()
}

// TableName derives the table of kind. Characters outside [a-z0-9_] are
// replaced with an underscore.
func TableName(prefix, kind string) string {
	kind = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, kind)
	return prefix + "_" + kind
}

// CreateTableSQL returns the DDL of an index table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	partition_key TEXT NOT NULL,
	row_key       TEXT NOT NULL,
	etag          TEXT NOT NULL,
	data          BYTEA,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	PRIMARY KEY (partition_key, row_key)
)`, pgx.Identifier{table}.Sanitize())
}

func (s *Store) table(ctx context.Context, kind string) (string, error) {
	name := TableName(s.config.TablePrefix, kind)

	quoted, err := s.config.Tables.Get(name)
	if err == nil {
		return quoted, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logr.FromContextOrDiscard(ctx).V(1).Info("table cache unavailable",
			"table", name, "error", err.Error())
	}

	if _, err := s.pool.Exec(ctx, CreateTableSQL(name)); err != nil {
		return "", fmt.Errorf("pgx: create index table %s: %w", name, err)
	}

	quoted = pgx.Identifier{name}.Sanitize()
	_ = s.config.Tables.Set(name, quoted, s.config.TableTTL)
	return quoted, nil
}

func (s *Store) Get(ctx context.Context, kind, pk, rk string) (index.Response, error) {
	table, err := s.table(ctx, kind)
	if err != nil {
		return index.Response{}, err
	}

	md := index.Metadata{PartitionKey: pk, RowKey: rk}
	var data []byte
	err = s.pool.QueryRow(ctx,
		"SELECT etag, data, updated_at FROM "+table+" WHERE partition_key = $1 AND row_key = $2",
		pk, rk).Scan(&md.ETag, &data, &md.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.NotFound(), nil
	}
	if err != nil {
		return index.Response{}, fmt.Errorf("pgx: get %s/%s: %w", pk, rk, err)
	}

	md.Data = data
	md.Timestamp = md.Timestamp.UTC()
	return index.Found(md), nil
}

func (s *Store) Upsert(ctx context.Context, kind string, md index.Metadata, match string) (index.Response, error) {
	table, err := s.table(ctx, kind)
	if err != nil {
		return index.Response{}, err
	}

	md.ETag = uuid.NewString()

	if match == index.MatchAny {
		err = s.pool.QueryRow(ctx, `INSERT INTO `+table+` (partition_key, row_key, etag, data, updated_at)
VALUES ($1, $2, $3, $4, clock_timestamp())
ON CONFLICT (partition_key, row_key) DO UPDATE
SET etag = EXCLUDED.etag, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
RETURNING updated_at`, md.PartitionKey, md.RowKey, md.ETag, []byte(md.Data)).Scan(&md.Timestamp)
		if err != nil {
			return index.Response{}, fmt.Errorf("pgx: upsert %s/%s: %w", md.PartitionKey, md.RowKey, err)
		}
		md.Timestamp = md.Timestamp.UTC()
		return index.Written(md), nil
	}

	err = s.pool.QueryRow(ctx, `UPDATE `+table+`
SET etag = $3, data = $4, updated_at = clock_timestamp()
WHERE partition_key = $1 AND row_key = $2 AND etag = $5
RETURNING updated_at`, md.PartitionKey, md.RowKey, md.ETag, []byte(md.Data), match).Scan(&md.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := s.Get(ctx, kind, md.PartitionKey, md.RowKey)
		if err != nil || current.IsNotFound() {
			return current, err
		}
		return index.PreconditionFailed(current.ETag), nil
	}
	if err != nil {
		return index.Response{}, fmt.Errorf("pgx: update %s/%s: %w", md.PartitionKey, md.RowKey, err)
	}

	md.Timestamp = md.Timestamp.UTC()
	return index.Written(md), nil
}
