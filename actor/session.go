package actor

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/key"
	"github.com/enverbisevac/actors/lock"
)

// Session is the exclusive hold on one record. It is owned by a single
// caller and not safe for concurrent use.
type Session[T any] struct {
	client   *Client[T]
	lock     *lock.Lock
	pair     key.Pair
	record   *Record[T]
	isNew    bool
	released bool
}

// Record is the held record. Mutations of the payload are persisted by
// Flush, always under the held key.
func (s *Session[T]) Record() *Record[T] {
	return s.record
}

// IsNew reports whether no payload existed when the key was held.
func (s *Session[T]) IsNew() bool {
	return s.isNew
}

func (s *Session[T]) IsReleased() bool {
	return s.released
}

// Renew extends the lease. Long running holders have to call it themselves
// before the lease duration of the policy runs out.
func (s *Session[T]) Renew(ctx context.Context) error {
	if s.released {
		return lock.ErrReleased
	}
	return s.lock.Renew(ctx)
}

// Flush persists the record and releases the lease. The lease is released
// even when persisting fails, both errors are returned joined. Once released,
// Flush does nothing.
func (s *Session[T]) Flush(ctx context.Context) (err error) {
	if s.released {
		return nil
	}

	c := s.client
	ctx, end := c.span(ctx, OpFlush, s.lock.Resource())
	defer func() { end(err) }()

	defer func() {
		rerr := c.release(ctx, s.lock)
		s.released = s.lock.State() != lock.Held
		err = errors.Join(err, rerr)
	}()

	if s.record == nil {
		return nil
	}
	if err := c.persist.save(ctx, s.pair, s.record); err != nil {
		return err
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("entity flushed",
		"kind", c.kind, "resource", s.lock.Resource(), "etag", s.record.ETag)
	return nil
}

// Close flushes pending mutations and drops the lock handle.
func (s *Session[T]) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	return errors.Join(err, s.lock.Close())
}
