// Package actor gives exclusive, keyed access to records kept in an index
// store and an object store. Hold leases the key, loads the record and hands
// out a Session; Flush persists the record and gives the lease back.
package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/trace"

	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/index"
	"github.com/enverbisevac/actors/key"
	"github.com/enverbisevac/actors/lease"
	"github.com/enverbisevac/actors/lock"
	"github.com/enverbisevac/actors/state"
)

// Stores are the backends a client works on. State is not needed in
// ModeIndexOnly.
type Stores struct {
	Leases lease.Store
	Index  index.Store
	State  state.Store
}

// Client holds and reads records with payload T.
type Client[T any] struct {
	kind           string
	factory        func() T
	locks          *lock.Service
	policy         lock.Policy
	persist        persister[T]
	releaseTimeout time.Duration
	observer       Observer
	tracer         trace.Tracer
}

// NewClient creates a client. The kind comes from WithKind or, when not
// given, from T implementing Kinder.
func NewClient[T any](stores Stores, options ...Option) (*Client[T], error) {
	config := Config{
		ReleaseTimeout: DefaultReleaseTimeout,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	if stores.Leases == nil || stores.Index == nil {
		return nil, fmt.Errorf("actor: lease and index stores are required")
	}

	factory := func() T {
		var v T
		return v
	}
	if config.Factory != nil {
		f, ok := config.Factory.(func() T)
		if !ok {
			return nil, fmt.Errorf("actor: factory %T does not build %T", config.Factory, factory())
		}
		factory = f
	}

	kind := config.Kind
	if kind == "" {
		kind = kindOf(factory())
	}
	if kind == "" {
		return nil, fmt.Errorf("actor: no kind for %T, use WithKind or implement Kinder", factory())
	}

	var p persister[T]
	switch config.Mode {
	case ModeSplit:
		if stores.State == nil {
			return nil, fmt.Errorf("actor: %s mode needs a state store", config.Mode)
		}
		p = &split[T]{kind: kind, index: stores.Index, state: stores.State}
	case ModeIndexOnly:
		p = &indexOnly[T]{kind: kind, index: stores.Index}
	default:
		return nil, fmt.Errorf("actor: unsupported %s", config.Mode)
	}

	locks := lock.NewService(stores.Leases, config.LockOptions...)
	policy := locks.Policy()
	if config.Policy != nil {
		policy = *config.Policy
	}

	c := &Client[T]{
		kind:           kind,
		factory:        factory,
		locks:          locks,
		policy:         policy,
		persist:        p,
		releaseTimeout: config.ReleaseTimeout,
		observer:       config.Observer,
		tracer:         config.Tracer,
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.tracer == nil {
		c.tracer = defaultTracer()
	}
	return c, nil
}

func kindOf[T any](v T) string {
	if k, ok := any(v).(Kinder); ok {
		return k.Kind()
	}
	if k, ok := any(&v).(Kinder); ok {
		return k.Kind()
	}
	return ""
}

func (c *Client[T]) Kind() string {
	return c.kind
}

// Policy returns the acquisition policy used by Hold.
func (c *Client[T]) Policy() lock.Policy {
	return c.policy
}

// Hold leases the key and loads its record. The returned session must be
// flushed or closed, see Do for a scoped variant.
func (c *Client[T]) Hold(ctx context.Context, pk, rk string) (_ *Session[T], err error) {
	pair, err := key.NewPair(pk, rk)
	if err != nil {
		return nil, err
	}

	ctx, end := c.span(ctx, OpHold, pair.Resource())
	defer func() { end(err) }()

	l, err := c.locks.NewLock(pair.Resource())
	if err != nil {
		return nil, err
	}
	if err := l.Acquire(ctx, c.policy); err != nil {
		return nil, err
	}

	rec, isNew, err := c.load(ctx, pair)
	if err != nil {
		return nil, errors.Join(err, c.release(ctx, l))
	}
	rec.ETag = index.MatchAny

	logr.FromContextOrDiscard(ctx).V(1).Info("entity held",
		"kind", c.kind, "resource", pair.Resource(), "new", isNew)

	return &Session[T]{
		client: c,
		lock:   l,
		pair:   pair,
		record: rec,
		isNew:  isNew,
	}, nil
}

// Get reads the record without leasing it. A missing record is returned as
// a new one.
func (c *Client[T]) Get(ctx context.Context, pk, rk string) (_ *Record[T], err error) {
	pair, err := key.NewPair(pk, rk)
	if err != nil {
		return nil, err
	}

	ctx, end := c.span(ctx, OpGet, pair.Resource())
	defer func() { end(err) }()

	rec, _, err := c.load(ctx, pair)
	return rec, err
}

// Do holds the key for the duration of fn. The session is closed afterwards
// even when fn fails, so mutations made by fn are committed.
func (c *Client[T]) Do(ctx context.Context, pk, rk string, fn func(context.Context, *Session[T]) error) (err error) {
	s, err := c.Hold(ctx, pk, rk)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close(ctx))
	}()

	return fn(ctx, s)
}

func (c *Client[T]) load(ctx context.Context, pair key.Pair) (*Record[T], bool, error) {
	rec, found, err := c.persist.load(ctx, pair)
	if err != nil {
		return nil, false, err
	}
	if !found {
		rec = &Record[T]{Payload: c.factory()}
	}
	rec.PartitionKey = pair.PartitionKey
	rec.RowKey = pair.RowKey
	return rec, !found, nil
}

// release gives l back on a context that survives cancellation of ctx.
func (c *Client[T]) release(ctx context.Context, l *lock.Lock) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
	defer cancel()

	if err := l.Release(ctx); err != nil {
		return fmt.Errorf("release %s: %w", l.Resource(), err)
	}
	return nil
}
