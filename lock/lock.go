// Package lock implements a distributed lock over a lease.Store. A Lock owns
// one named lease and moves from Unacquired to Held to Released exactly once.
package lock

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/go-logr/logr"

	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/lease"
)

var (
	ErrEmptyResource = stderrors.New("lock: resource must not be empty")
	ErrAlreadyHeld   = stderrors.New("lock: already held")
	ErrReleased      = stderrors.New("lock: already released")
	ErrNotHeld       = stderrors.New("lock: not held")
	ErrClosed        = stderrors.New("lock: closed")
)

// State of a Lock.
type State int

const (
	Unacquired State = iota
	Held
	Released
)

func (s State) String() string {
	switch s {
	case Unacquired:
		return "unacquired"
	case Held:
		return "held"
	case Released:
		return "released"
	}
	return "unknown"
}

// Lock is a single use handle on one lease. It is safe for concurrent use
// but is meant to be owned by one holder.
type Lock struct {
	store    lease.Store
	resource string

	mu       sync.Mutex
	state    State
	token    string
	duration time.Duration
	closed   bool
}

// New creates an unacquired lock on resource.
func New(store lease.Store, resource string) (*Lock, error) {
	if strings.TrimSpace(resource) == "" {
		return nil, ErrEmptyResource
	}
	return &Lock{
		store:    store,
		resource: resource,
	}, nil
}

func (l *Lock) Resource() string {
	return l.resource
}

func (l *Lock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Token returns the lease token while held.
func (l *Lock) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// Acquire ensures the backing resource exists and leases it according to p.
// Only conflicts are retried, any other store error is returned as is.
func (l *Lock) Acquire(ctx context.Context, p Policy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.closed:
		return ErrClosed
	case l.state == Held:
		return ErrAlreadyHeld
	case l.state == Released:
		return ErrReleased
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("resource", l.resource)

	if err := l.store.Ensure(ctx, l.resource); err != nil {
		return l.contextErr(ctx, err)
	}

	d := p.leaseDuration()

	var (
		token     string
		last      error
		conflicts []error
	)

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(p.attempts()),
		retry.Delay(p.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(lease.IsConflict),
		retry.OnRetry(func(n uint, err error) {
			log.V(1).Info("lock busy", "attempt", n+1, "error", err.Error())
		}),
	).Do(func() error {
		t, err := l.store.Acquire(ctx, l.resource, d)
		if err != nil {
			last = err
			if lease.IsConflict(err) {
				conflicts = append(conflicts, errors.LockConflict(l.resource, err))
			}
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return l.contextErr(ctx, err)
		}
		if last != nil && !lease.IsConflict(last) {
			return last
		}
		if !p.Retry {
			return errors.LockConflict(l.resource, last)
		}
		return errors.LockAcquisition(l.resource, conflicts...)
	}

	l.token = token
	l.duration = d
	l.state = Held

	log.V(1).Info("lock acquired", "lease", d.String(), "attempts", len(conflicts)+1)
	return nil
}

func (l *Lock) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			return errors.Timeout(l.resource, ctxErr)
		}
		return ctxErr
	}
	return err
}

// Renew extends the held lease by the duration it was acquired with. It is
// never called automatically.
func (l *Lock) Renew(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Held {
		return ErrNotHeld
	}

	return l.store.Renew(ctx, l.resource, l.token, l.duration)
}

// Release gives the lease back. It is a no-op unless the lock is held. A
// lease that already expired or was taken over counts as released, the
// error is still returned so the caller learns exclusivity was lost.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Held {
		return nil
	}

	err := l.store.Release(ctx, l.resource, l.token)
	if err != nil && !lease.IsNotHeld(err) {
		return err
	}

	l.state = Released
	l.token = ""

	logr.FromContextOrDiscard(ctx).V(1).Info("lock released", "resource", l.resource)
	return err
}

// Close drops the handle. It does not talk to the lease store: a lease still
// held at this point expires on its own.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	return nil
}
