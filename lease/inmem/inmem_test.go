package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enverbisevac/actors/lease"
	"github.com/enverbisevac/actors/lease/leasetest"
)

func TestConformance(t *testing.T) {
	leasetest.Run(t, func(t *testing.T) lease.Store {
		return New()
	}, leasetest.Options{Expiry: 20 * time.Millisecond})
}

func TestAcquireWithoutEnsure(t *testing.T) {
	s := New()

	_, err := s.Acquire(context.Background(), "missing", time.Second)

	require.Error(t, err)
	assert.False(t, lease.IsConflict(err))
}

func TestExpiredLeaseCanNotBeReleased(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Ensure(ctx, "r"))
	token, err := s.Acquire(ctx, "r", time.Second)
	require.NoError(t, err)
	assert.True(t, s.Held("r"))

	now = now.Add(2 * time.Second)

	assert.False(t, s.Held("r"))
	assert.True(t, lease.IsNotHeld(s.Release(ctx, "r", token)))
	assert.True(t, lease.IsNotHeld(s.Renew(ctx, "r", token, time.Second)))
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Ensure(ctx, "r"), context.Canceled)
}
