// Package lease defines the time-bounded exclusive claim primitive used by
// the lock package. Backends live in subpackages.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConflict is wrapped by Acquire when another holder owns the lease.
	ErrConflict = errors.New("lease: resource is already leased")
	// ErrNotHeld is wrapped by Renew and Release when the token does not
	// own the lease anymore.
	ErrNotHeld = errors.New("lease: lease not held")
)

// Store acquires, renews and releases leases on named resources.
type Store interface {
	// Ensure creates the backing resource placeholder if it does not exist.
	Ensure(ctx context.Context, resource string) error
	// Acquire returns a token owning resource for d.
	Acquire(ctx context.Context, resource string, d time.Duration) (string, error)
	// Renew extends the lease owned by token by d. Backends that renew with
	// the original duration ignore d.
	Renew(ctx context.Context, resource, token string, d time.Duration) error
	Release(ctx context.Context, resource, token string) error
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotHeld(err error) bool {
	return errors.Is(err, ErrNotHeld)
}
