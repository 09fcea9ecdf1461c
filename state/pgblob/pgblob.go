// Package pgblob is a gocloud.dev/blob driver keeping objects in a
// PostgreSQL bytea table. It lets the state store live in the same database
// as the lease and index tables.
//
// For blob.OpenBucket pgblob registers the scheme "pgblob", see URLOpener.
// ErrorAs exposes *pgconn.PgError.
package pgblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gocloud.dev/blob"
	"gocloud.dev/blob/driver"
	"gocloud.dev/gcerrors"
)

const defaultPageSize = 1000

var (
	errNotFound       = errors.New("object not found")
	errNotImplemented = errors.New("not implemented")
)

type bucket struct {
	pool    *pgxpool.Pool
	table   string
	closeFn func()
}

// OpenBucket returns a bucket stored in pool. The table has to exist, see
// Migrate.
func OpenBucket(pool *pgxpool.Pool, opts ...Option) *blob.Bucket {
	return blob.NewBucket(newBucket(pool, newConfig(opts...)))
}

func newBucket(pool *pgxpool.Pool, cfg Config) *bucket {
	return &bucket{
		pool:  pool,
		table: pgx.Identifier{cfg.Table}.Sanitize(),
	}
}

func (b *bucket) Close() error {
	if b.closeFn != nil {
		b.closeFn()
	}
	return nil
}

func (b *bucket) ErrorCode(err error) gcerrors.ErrorCode {
	switch {
	case errors.Is(err, errNotFound):
		return gcerrors.NotFound
	case errors.Is(err, errNotImplemented):
		return gcerrors.Unimplemented
	case errors.Is(err, context.Canceled):
		return gcerrors.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return gcerrors.DeadlineExceeded
	default:
		return gcerrors.Unknown
	}
}

func (b *bucket) As(any) bool { return false }

func (b *bucket) ErrorAs(err error, i any) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	target, ok := i.(**pgconn.PgError)
	if ok {
		*target = pgErr
	}
	return ok
}

func (b *bucket) Attributes(ctx context.Context, key string) (*driver.Attributes, error) {
	var (
		attrs driver.Attributes
		md5   []byte
	)
	err := b.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT content_type, octet_length(data), md5_hash, created_at, updated_at FROM %s WHERE key = $1`,
		b.table,
	), key).Scan(&attrs.ContentType, &attrs.Size, &md5, &attrs.CreateTime, &attrs.ModTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgblob: attributes: %w", err)
	}
	attrs.MD5 = md5
	attrs.ETag = etag(md5)
	return &attrs, nil
}

func (b *bucket) NewRangeReader(ctx context.Context, key string, offset, length int64, opts *driver.ReaderOptions) (driver.Reader, error) {
	var (
		data  []byte
		attrs driver.ReaderAttributes
	)
	err := b.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT data, content_type, updated_at FROM %s WHERE key = $1`,
		b.table,
	), key).Scan(&data, &attrs.ContentType, &attrs.ModTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgblob: read: %w", err)
	}
	attrs.Size = int64(len(data))

	if opts != nil && opts.BeforeRead != nil {
		if err := opts.BeforeRead(func(any) bool { return false }); err != nil {
			return nil, err
		}
	}

	offset = min(offset, int64(len(data)))
	data = data[offset:]
	if length >= 0 && length < int64(len(data)) {
		data = data[:length]
	}

	return &reader{
		r:     bytes.NewReader(data),
		attrs: attrs,
	}, nil
}

func (b *bucket) NewTypedWriter(ctx context.Context, key, contentType string, opts *driver.WriterOptions) (driver.Writer, error) {
	if opts != nil && opts.BeforeWrite != nil {
		if err := opts.BeforeWrite(func(any) bool { return false }); err != nil {
			return nil, err
		}
	}
	w := &writer{
		ctx:         ctx,
		bucket:      b,
		key:         key,
		contentType: contentType,
	}
	if opts != nil {
		w.contentMD5 = opts.ContentMD5
	}
	return w, nil
}

func (b *bucket) put(ctx context.Context, key, contentType string, data, md5 []byte) error {
	_, err := b.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (key, data, content_type, md5_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET
	data = EXCLUDED.data,
	content_type = EXCLUDED.content_type,
	md5_hash = EXCLUDED.md5_hash,
	updated_at = now()`, b.table), key, data, contentType, md5)
	if err != nil {
		return fmt.Errorf("pgblob: put: %w", err)
	}
	return nil
}

func (b *bucket) Copy(ctx context.Context, dstKey, srcKey string, opts *driver.CopyOptions) error {
	if opts != nil && opts.BeforeCopy != nil {
		if err := opts.BeforeCopy(func(any) bool { return false }); err != nil {
			return err
		}
	}
	tag, err := b.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %[1]s (key, data, content_type, md5_hash)
SELECT $1, data, content_type, md5_hash FROM %[1]s WHERE key = $2
ON CONFLICT (key) DO UPDATE SET
	data = EXCLUDED.data,
	content_type = EXCLUDED.content_type,
	md5_hash = EXCLUDED.md5_hash,
	updated_at = now()`, b.table), dstKey, srcKey)
	if err != nil {
		return fmt.Errorf("pgblob: copy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	tag, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, b.table), key)
	if err != nil {
		return fmt.Errorf("pgblob: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (b *bucket) ListPaged(ctx context.Context, opts *driver.ListOptions) (*driver.ListPage, error) {
	if opts.BeforeList != nil {
		if err := opts.BeforeList(func(any) bool { return false }); err != nil {
			return nil, err
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	rows, err := b.pool.Query(ctx, fmt.Sprintf(
		`SELECT key, octet_length(data), md5_hash, updated_at FROM %s
WHERE starts_with(key, $1) AND key > $2 ORDER BY key`,
		b.table,
	), opts.Prefix, string(opts.PageToken))
	if err != nil {
		return nil, fmt.Errorf("pgblob: list: %w", err)
	}
	defer rows.Close()

	var (
		page    driver.ListPage
		lastDir string
	)
	for rows.Next() {
		var (
			obj     driver.ListObject
			modTime time.Time
		)
		if err := rows.Scan(&obj.Key, &obj.Size, &obj.MD5, &modTime); err != nil {
			return nil, fmt.Errorf("pgblob: list scan: %w", err)
		}
		obj.ModTime = modTime

		if opts.Delimiter != "" {
			rest := obj.Key[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				dir := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if dir == lastDir {
					continue
				}
				lastDir = dir
				obj = driver.ListObject{Key: dir, IsDir: true}
			}
		}

		if len(page.Objects) == pageSize {
			last := page.Objects[pageSize-1]
			page.NextPageToken = []byte(last.Key)
			if last.IsDir {
				// skip every key below the collapsed directory
				page.NextPageToken = []byte(last.Key + "\U0010FFFF")
			}
			break
		}
		page.Objects = append(page.Objects, &obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgblob: list rows: %w", err)
	}
	return &page, nil
}

func (b *bucket) SignedURL(context.Context, string, *driver.SignedURLOptions) (string, error) {
	return "", errNotImplemented
}

func etag(md5 []byte) string {
	if len(md5) == 0 {
		return ""
	}
	return fmt.Sprintf(`"%x"`, md5)
}

type reader struct {
	r     io.Reader
	attrs driver.ReaderAttributes
}

func (r *reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *reader) Close() error { return nil }

func (r *reader) Attributes() *driver.ReaderAttributes {
	return &r.attrs
}

func (r *reader) As(any) bool { return false }
