package actor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/index"
	"github.com/enverbisevac/actors/key"
	"github.com/enverbisevac/actors/state"
)

// persister loads and stores records of one kind. load reports false when
// no payload exists. save writes rec under pair and resets the record keys
// to it.
type persister[T any] interface {
	load(ctx context.Context, pair key.Pair) (*Record[T], bool, error)
	save(ctx context.Context, pair key.Pair, rec *Record[T]) error
}

func getIndex(ctx context.Context, store index.Store, kind string, pair key.Pair) (*index.Metadata, error) {
	resp, err := store.Get(ctx, kind, pair.PartitionKey, pair.RowKey)
	if err != nil {
		return nil, errors.Persistence("index get", err)
	}
	if resp.IsNotFound() {
		return nil, nil
	}
	if !resp.IsSuccess() {
		return nil, errors.PersistenceStatus("index get", resp.StatusCode, resp.Message)
	}
	return resp.Result, nil
}

func upsertIndex(ctx context.Context, store index.Store, kind string, md index.Metadata) (index.Response, error) {
	md.ETag = index.MatchAny
	resp, err := store.Upsert(ctx, kind, md, index.MatchAny)
	if err != nil {
		return resp, errors.Persistence("index upsert", err)
	}
	if !resp.IsSuccess() {
		return resp, errors.PersistenceStatus("index upsert", resp.StatusCode, resp.Message)
	}
	return resp, nil
}

// split keeps the payload in the state store under the blob name of the key
// and a metadata record in the index.
type split[T any] struct {
	kind  string
	index index.Store
	state state.Store
}

func (p *split[T]) load(ctx context.Context, pair key.Pair) (*Record[T], bool, error) {
	var (
		md    *index.Metadata
		data  []byte
		found bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		md, err = getIndex(gctx, p.index, p.kind, pair)
		return err
	})
	g.Go(func() error {
		var err error
		data, found, err = p.state.Get(gctx, pair.BlobName())
		if err != nil {
			return errors.Persistence("state get", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	rec, err := state.Decode[Record[T]](pair.PartitionKey, pair.RowKey, data)
	if err != nil {
		return nil, false, err
	}
	if md != nil {
		rec.Timestamp = md.Timestamp
		rec.ETag = md.ETag
	}
	return &rec, true, nil
}

func (p *split[T]) save(ctx context.Context, pair key.Pair, rec *Record[T]) error {
	rec.PartitionKey = pair.PartitionKey
	rec.RowKey = pair.RowKey

	data, err := state.Encode(pair.PartitionKey, pair.RowKey, rec)
	if err != nil {
		return err
	}
	if err := p.state.Put(ctx, pair.BlobName(), data); err != nil {
		return errors.Persistence("state put", err)
	}

	resp, err := upsertIndex(ctx, p.index, p.kind, index.Metadata{
		PartitionKey: pair.PartitionKey,
		RowKey:       pair.RowKey,
	})
	if err != nil {
		return err
	}
	rec.ETag = resp.ETag
	rec.Timestamp = resp.Timestamp
	return nil
}

// indexOnly stores the envelope in the Data column of the index record.
type indexOnly[T any] struct {
	kind  string
	index index.Store
}

func (p *indexOnly[T]) load(ctx context.Context, pair key.Pair) (*Record[T], bool, error) {
	md, err := getIndex(ctx, p.index, p.kind, pair)
	if err != nil || md == nil || len(md.Data) == 0 {
		return nil, false, err
	}

	rec, err := state.Decode[Record[T]](pair.PartitionKey, pair.RowKey, md.Data)
	if err != nil {
		return nil, false, err
	}
	rec.Timestamp = md.Timestamp
	rec.ETag = md.ETag
	return &rec, true, nil
}

func (p *indexOnly[T]) save(ctx context.Context, pair key.Pair, rec *Record[T]) error {
	rec.PartitionKey = pair.PartitionKey
	rec.RowKey = pair.RowKey

	data, err := state.Encode(pair.PartitionKey, pair.RowKey, rec)
	if err != nil {
		return err
	}

	resp, err := upsertIndex(ctx, p.index, p.kind, index.Metadata{
		PartitionKey: pair.PartitionKey,
		RowKey:       pair.RowKey,
		Data:         data,
	})
	if err != nil {
		return err
	}
	rec.ETag = resp.ETag
	rec.Timestamp = resp.Timestamp
	return nil
}
