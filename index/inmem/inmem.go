package inmem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enverbisevac/actors/index"
)

// Store implements index.Store in process memory, one table per kind.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	tables map[string]map[string]index.Metadata
}

func New() *Store {
	return &Store{
		now:    time.Now,
		tables: make(map[string]map[string]index.Metadata),
	}
}

func id(pk, rk string) string {
	return pk + "\x00" + rk
}

func (s *Store) Get(ctx context.Context, kind, pk, rk string) (index.Response, error) {
	if err := ctx.Err(); err != nil {
		return index.Response{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.tables[kind][id(pk, rk)]
	if !ok {
		return index.NotFound(), nil
	}
	md.Data = slices.Clone(md.Data)
	return index.Found(md), nil
}

func (s *Store) Upsert(ctx context.Context, kind string, md index.Metadata, match string) (index.Response, error) {
	if err := ctx.Err(); err != nil {
		return index.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[kind]
	if !ok {
		table = make(map[string]index.Metadata)
		s.tables[kind] = table
	}

	key := id(md.PartitionKey, md.RowKey)
	if match != index.MatchAny {
		current, ok := table[key]
		if !ok {
			return index.NotFound(), nil
		}
		if current.ETag != match {
			return index.PreconditionFailed(current.ETag), nil
		}
	}

	md.ETag = uuid.NewString()
	md.Timestamp = s.now().UTC()
	md.Data = slices.Clone(md.Data)
	table[key] = md

	return index.Written(md), nil
}

// Len returns the number of records stored for kind.
func (s *Store) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[kind])
}
