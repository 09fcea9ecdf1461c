// Package leasetest is a conformance suite run by every lease.Store backend.
package leasetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enverbisevac/actors/lease"
)

// Options tunes the suite for backend limits.
type Options struct {
	// Duration is the lease length used by most cases. Default 15s.
	Duration time.Duration
	// Expiry is a lease short enough to wait out. Zero skips the expiry case.
	Expiry time.Duration
}

// Run executes the suite against stores returned by open.
func Run(t *testing.T, open func(t *testing.T) lease.Store, opts Options) {
	if opts.Duration == 0 {
		opts.Duration = 15 * time.Second
	}

	t.Run("AcquireConflictRelease", func(t *testing.T) {
		testAcquireConflictRelease(t, open(t), opts)
	})
	t.Run("EnsureIdempotent", func(t *testing.T) {
		testEnsureIdempotent(t, open(t), opts)
	})
	t.Run("Renew", func(t *testing.T) {
		testRenew(t, open(t), opts)
	})
	t.Run("StaleToken", func(t *testing.T) {
		testStaleToken(t, open(t), opts)
	})
	t.Run("SingleWinner", func(t *testing.T) {
		testSingleWinner(t, open(t), opts)
	})
	if opts.Expiry > 0 {
		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, open(t), opts)
		})
	}
}

func resource() string {
	return "leasetest/" + uuid.NewString()
}

func testAcquireConflictRelease(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))

	token, err := s.Acquire(ctx, res, opts.Duration)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = s.Acquire(ctx, res, opts.Duration)
	require.Error(t, err)
	assert.True(t, lease.IsConflict(err), "expected conflict, got %v", err)

	require.NoError(t, s.Release(ctx, res, token))

	again, err := s.Acquire(ctx, res, opts.Duration)
	require.NoError(t, err)
	assert.NotEqual(t, token, again)
	require.NoError(t, s.Release(ctx, res, again))
}

func testEnsureIdempotent(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))
	token, err := s.Acquire(ctx, res, opts.Duration)
	require.NoError(t, err)

	// a second Ensure must not disturb the held lease
	require.NoError(t, s.Ensure(ctx, res))

	_, err = s.Acquire(ctx, res, opts.Duration)
	assert.True(t, lease.IsConflict(err), "expected conflict, got %v", err)

	require.NoError(t, s.Release(ctx, res, token))
}

func testRenew(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))
	token, err := s.Acquire(ctx, res, opts.Duration)
	require.NoError(t, err)

	require.NoError(t, s.Renew(ctx, res, token, opts.Duration))

	_, err = s.Acquire(ctx, res, opts.Duration)
	assert.True(t, lease.IsConflict(err), "expected conflict, got %v", err)

	require.NoError(t, s.Release(ctx, res, token))
}

func testStaleToken(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))
	token, err := s.Acquire(ctx, res, opts.Duration)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, res, token))

	err = s.Release(ctx, res, token)
	assert.True(t, lease.IsNotHeld(err), "expected not held, got %v", err)

	err = s.Renew(ctx, res, token, opts.Duration)
	assert.True(t, lease.IsNotHeld(err), "expected not held, got %v", err)
}

func testSingleWinner(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := s.Acquire(ctx, res, opts.Duration)
			if err != nil {
				assert.True(t, lease.IsConflict(err), "expected conflict, got %v", err)
				return
			}
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, tokens, 1)
	require.NoError(t, s.Release(ctx, res, tokens[0]))
}

func testExpiry(t *testing.T, s lease.Store, opts Options) {
	ctx := context.Background()
	res := resource()

	require.NoError(t, s.Ensure(ctx, res))
	_, err := s.Acquire(ctx, res, opts.Expiry)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		token, err := s.Acquire(ctx, res, opts.Duration)
		if err != nil {
			return false
		}
		return s.Release(ctx, res, token) == nil
	}, opts.Expiry*20+time.Second, opts.Expiry/2+10*time.Millisecond)
}
