// Package state is the object store holding actor payloads. It works on any
// gocloud.dev/blob bucket: memblob, fileblob, azureblob, s3blob or pgblob.
package state

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const (
	DefaultNamespace = "entitystate"
	ContentType      = "application/json"
)

// Store reads and writes payloads by key.
type Store interface {
	// Get returns false when key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Bucket implements Store on a blob bucket.
type Bucket struct {
	bucket *blob.Bucket
}

// New wraps bucket. Keys are used as is.
func New(bucket *blob.Bucket) *Bucket {
	return &Bucket{bucket: bucket}
}

// Open opens the bucket at url and scopes every key under namespace. The
// driver of the url scheme has to be linked into the binary.
func Open(ctx context.Context, url, namespace string) (*Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", url, err)
	}
	if namespace = strings.Trim(namespace, "/"); namespace != "" {
		bucket = blob.PrefixedBucket(bucket, namespace+"/")
	}
	return New(bucket), nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: get %s: %w", key, err)
	}
	return data, true, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	err := b.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return fmt.Errorf("state: put %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("state: exists %s: %w", key, err)
	}
	return ok, nil
}

func (b *Bucket) Close() error {
	return b.bucket.Close()
}
