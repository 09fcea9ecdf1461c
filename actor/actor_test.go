package actor

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gocloud.dev/blob/memblob"

	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/index"
	indexinmem "github.com/enverbisevac/actors/index/inmem"
	"github.com/enverbisevac/actors/lease"
	leaseinmem "github.com/enverbisevac/actors/lease/inmem"
	"github.com/enverbisevac/actors/lock"
	"github.com/enverbisevac/actors/state"
)

func TestMain(m *testing.M) {
	// memblob pulls in opencensus, which starts its view worker at init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type item struct {
	X    int    `json:"x"`
	Name string `json:"name,omitempty"`
}

type counter struct {
	Count int `json:"count"`
}

func (counter) Kind() string { return "counter" }

// stateStore wraps a state.Store counting writes and injecting failures.
type stateStore struct {
	state.Store

	mu     sync.Mutex
	puts   int
	getErr error
	putErr error
}

func (s *stateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return s.Store.Get(ctx, key)
}

func (s *stateStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err := s.putErr
	if err == nil {
		s.puts++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, key, data)
}

func (s *stateStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// leaseStore fails Release while releaseErr is set.
type leaseStore struct {
	*leaseinmem.Store

	mu         sync.Mutex
	releaseErr error
}

func (l *leaseStore) Release(ctx context.Context, resource, token string) error {
	l.mu.Lock()
	err := l.releaseErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.Store.Release(ctx, resource, token)
}

func (l *leaseStore) failRelease(err error) {
	l.mu.Lock()
	l.releaseErr = err
	l.mu.Unlock()
}

type env struct {
	leases *leaseStore
	index  *indexinmem.Store
	state  *stateStore
}

func newEnv(t *testing.T) *env {
	t.Helper()

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() {
		_ = bucket.Close()
	})

	return &env{
		leases: &leaseStore{Store: leaseinmem.New()},
		index:  indexinmem.New(),
		state:  &stateStore{Store: state.New(bucket)},
	}
}

func (e *env) stores() Stores {
	return Stores{Leases: e.leases, Index: e.index, State: e.state}
}

func newClient[T any](t *testing.T, e *env, opts ...Option) *Client[T] {
	t.Helper()
	c, err := NewClient[T](e.stores(), opts...)
	require.NoError(t, err)
	return c
}

func TestHoldNewRecord(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)

	assert.True(t, s.IsNew())
	assert.False(t, s.IsReleased())
	assert.Equal(t, "p1", s.Record().PartitionKey)
	assert.Equal(t, "r1", s.Record().RowKey)
	assert.Equal(t, index.MatchAny, s.Record().ETag)
	assert.Equal(t, item{}, s.Record().Payload)
	assert.True(t, e.leases.Held("p1/r1"))

	require.NoError(t, s.Flush(ctx))
	assert.False(t, e.leases.Held("p1/r1"))
}

func TestRoundTrip(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	s.Record().Payload.X = 42
	require.NoError(t, s.Flush(ctx))

	assert.True(t, s.IsReleased())
	assert.NotEqual(t, index.MatchAny, s.Record().ETag)
	assert.False(t, s.Record().Timestamp.IsZero())

	s, err = c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close(ctx))
	}()

	assert.False(t, s.IsNew())
	assert.Equal(t, 42, s.Record().Payload.X)
	assert.Equal(t, index.MatchAny, s.Record().ETag)

	resp, err := e.index.Get(ctx, "item", "p1", "r1")
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
	assert.WithinDuration(t, resp.Timestamp, s.Record().Timestamp, time.Millisecond)
}

func TestFlushIdempotent(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	s.Record().Payload.X = 1

	for range 3 {
		require.NoError(t, s.Flush(ctx))
	}
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, 1, e.state.writes())
	assert.True(t, s.IsReleased())
}

func TestCloseCommits(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	s.Record().Payload.Name = "pending"
	require.NoError(t, s.Close(ctx))

	rec, err := c.Get(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Payload.Name)
}

func TestDo(t *testing.T) {
	e := newEnv(t)
	c := newClient[counter](t, e)
	ctx := context.Background()

	for range 3 {
		err := c.Do(ctx, "entity", "a", func(_ context.Context, s *Session[counter]) error {
			s.Record().Payload.Count++
			return nil
		})
		require.NoError(t, err)
	}

	boom := stderrors.New("boom")
	err := c.Do(ctx, "entity", "a", func(_ context.Context, s *Session[counter]) error {
		s.Record().Payload.Count += 10
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := c.Get(ctx, "entity", "a")
	require.NoError(t, err)
	assert.Equal(t, 13, rec.Payload.Count)
	assert.False(t, e.leases.Held("entity/a"))
}

func TestMutualExclusion(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"), WithPolicy(lock.FailFast(time.Minute)))
	ctx := context.Background()

	first, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)

	_, err = c.Hold(ctx, "p1", "r1")
	cerr, ok := errors.AsLockConflict(err)
	require.True(t, ok, "expected lock conflict, got %v", err)
	assert.Equal(t, "p1/r1", cerr.Resource)

	other, err := c.Hold(ctx, "p1", "r2")
	require.NoError(t, err)
	require.NoError(t, other.Close(ctx))

	require.NoError(t, first.Flush(ctx))

	second, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))
}

func TestRetryExhausted(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"), WithLockOptions(
		lock.WithRetryAttempts(3),
		lock.WithRetryInterval(time.Millisecond),
	))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close(ctx))
	}()

	_, err = c.Hold(ctx, "p1", "r1")
	aerr, ok := errors.AsLockAcquisition(err)
	require.True(t, ok, "expected acquisition error, got %v", err)
	assert.Equal(t, 3, aerr.Attempts)
}

func TestBoundedContention(t *testing.T) {
	e := newEnv(t)
	c := newClient[counter](t, e, WithPolicy(lock.Retry(10, 10*time.Millisecond, 15*time.Second)))
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 3)
	)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Do(ctx, "entity", "contended", func(_ context.Context, s *Session[counter]) error {
				s.Record().Payload.Count++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := c.Get(ctx, "entity", "contended")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Payload.Count)
}

func TestHoldInvalidKeys(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))

	_, err := c.Hold(context.Background(), " ", "")
	require.Error(t, err)
	assert.True(t, errors.IsKeyValidation(err))
	assert.True(t, errors.IsValidation(err))
}

func TestHoldNormalizesKeys(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p/1", "r#1?")
	require.NoError(t, err)
	assert.Equal(t, "p1", s.Record().PartitionKey)
	assert.Equal(t, "r1", s.Record().RowKey)
	require.NoError(t, s.Flush(ctx))

	ok, err := e.state.Exists(ctx, "p1/r1.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHoldReappliesKeys(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	require.NoError(t, e.state.Put(ctx, "p1/r1.json",
		[]byte(`{"partitionKey":"stale","rowKey":"stale","payload":{"x":7}}`)))

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close(ctx))
	}()

	assert.False(t, s.IsNew())
	assert.Equal(t, "p1", s.Record().PartitionKey)
	assert.Equal(t, "r1", s.Record().RowKey)
	assert.Equal(t, 7, s.Record().Payload.X)
}

func TestFlushWritesHeldKey(t *testing.T) {
	for _, mode := range []Mode{ModeSplit, ModeIndexOnly} {
		t.Run(mode.String(), func(t *testing.T) {
			e := newEnv(t)
			c := newClient[item](t, e, WithKind("item"), WithMode(mode))
			ctx := context.Background()

			other, err := c.Hold(ctx, "p2", "r2")
			require.NoError(t, err)

			s, err := c.Hold(ctx, "p1", "r1")
			require.NoError(t, err)
			s.Record().PartitionKey = "p2"
			s.Record().RowKey = "r2"
			s.Record().Payload.X = 99
			require.NoError(t, s.Flush(ctx))

			assert.Equal(t, "p1", s.Record().PartitionKey)
			assert.Equal(t, "r1", s.Record().RowKey)
			assert.True(t, e.leases.Held("p2/r2"))

			resp, err := e.index.Get(ctx, "item", "p2", "r2")
			require.NoError(t, err)
			assert.True(t, resp.IsNotFound())

			ok, err := e.state.Exists(ctx, "p2/r2.json")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, other.Close(ctx))

			rec, err := c.Get(ctx, "p1", "r1")
			require.NoError(t, err)
			assert.Equal(t, 99, rec.Payload.X)
			assert.Equal(t, "p1", rec.PartitionKey)
		})
	}
}

func TestHoldLoadFailureReleases(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	e.state.getErr = stderrors.New("state unavailable")

	_, err := c.Hold(ctx, "p1", "r1")
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.False(t, e.leases.Held("p1/r1"))
}

func TestHoldSerializationError(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	require.NoError(t, e.state.Put(ctx, "p1/r1.json", []byte(`{"payload":{"x":"nope"}}`)))

	_, err := c.Hold(ctx, "p1", "r1")
	serr, ok := errors.AsSerialization(err)
	require.True(t, ok, "expected serialization error, got %v", err)
	assert.Equal(t, "p1", serr.PartitionKey)
	assert.Equal(t, "r1", serr.RowKey)
	assert.False(t, e.leases.Held("p1/r1"))
}

func TestFlushReleasesOnPersistFailure(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)

	e.state.putErr = stderrors.New("disk full")
	err = s.Flush(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.True(t, s.IsReleased())
	assert.False(t, e.leases.Held("p1/r1"))
}

func TestFlushJoinsReleaseError(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)

	releaseErr := stderrors.New("lease backend down")
	e.state.putErr = stderrors.New("disk full")
	e.leases.failRelease(releaseErr)

	err = s.Flush(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.ErrorIs(t, err, releaseErr)
	assert.False(t, s.IsReleased())
	assert.True(t, e.leases.Held("p1/r1"))

	e.state.putErr = nil
	e.leases.failRelease(nil)

	require.NoError(t, s.Flush(ctx))
	assert.True(t, s.IsReleased())
	assert.False(t, e.leases.Held("p1/r1"))
	assert.Equal(t, 1, e.state.writes())
}

func TestFlushAfterLeaseLost(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)

	e.leases.failRelease(lease.ErrNotHeld)
	err = s.Flush(ctx)
	assert.ErrorIs(t, err, lease.ErrNotHeld)
	assert.True(t, s.IsReleased())
	e.leases.failRelease(nil)
}

func TestSessionRenew(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	require.NoError(t, s.Renew(ctx))
	require.NoError(t, s.Flush(ctx))

	assert.ErrorIs(t, s.Renew(ctx), lock.ErrReleased)
}

func TestIndexOnlyMode(t *testing.T) {
	e := newEnv(t)
	c, err := NewClient[item](Stores{Leases: e.leases, Index: e.index},
		WithKind("item"), WithMode(ModeIndexOnly))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.True(t, s.IsNew())
	s.Record().Payload.X = 5
	require.NoError(t, s.Close(ctx))

	resp, err := e.index.Get(ctx, "item", "p1", "r1")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.JSONEq(t, `{"x":5}`, string(mustPayload(t, resp.Result.Data)))

	s, err = c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.False(t, s.IsNew())
	assert.Equal(t, 5, s.Record().Payload.X)
	require.NoError(t, s.Close(ctx))

	assert.Zero(t, e.state.writes())
}

func mustPayload(t *testing.T, data []byte) []byte {
	t.Helper()
	rec, err := state.Decode[struct {
		Payload map[string]any `json:"payload"`
	}]("p", "r", data)
	require.NoError(t, err)
	out, err := state.Encode("p", "r", rec.Payload)
	require.NoError(t, err)
	return out
}

func TestGet(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"))
	ctx := context.Background()

	rec, err := c.Get(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.PartitionKey)
	assert.Zero(t, rec.Payload.X)
	assert.Empty(t, rec.ETag)
	assert.False(t, e.leases.Held("p1/r1"))

	require.NoError(t, c.Do(ctx, "p1", "r1", func(_ context.Context, s *Session[item]) error {
		s.Record().Payload.X = 9
		return nil
	}))

	rec, err = c.Get(ctx, "p1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 9, rec.Payload.X)
	assert.NotEmpty(t, rec.ETag)
	assert.NotEqual(t, index.MatchAny, rec.ETag)
}

func TestGetWhileHeld(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"), WithPolicy(lock.FailFast(time.Minute)))
	ctx := context.Background()

	s, err := c.Hold(ctx, "p1", "r1")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close(ctx))
	}()

	_, err = c.Get(ctx, "p1", "r1")
	assert.NoError(t, err)
}

func TestFactory(t *testing.T) {
	e := newEnv(t)
	c := newClient[item](t, e, WithKind("item"), WithFactory(func() item {
		return item{Name: "fresh"}
	}))

	rec, err := c.Get(context.Background(), "p1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.Payload.Name)
}

func TestKind(t *testing.T) {
	e := newEnv(t)

	c := newClient[counter](t, e)
	assert.Equal(t, "counter", c.Kind())

	c = newClient[counter](t, e, WithKind("override"))
	assert.Equal(t, "override", c.Kind())
}

func TestNewClientErrors(t *testing.T) {
	e := newEnv(t)

	_, err := NewClient[item](e.stores())
	assert.ErrorContains(t, err, "no kind")

	_, err = NewClient[item](e.stores(), WithKind("item"), WithFactory(func() counter { return counter{} }))
	assert.ErrorContains(t, err, "factory")

	_, err = NewClient[item](Stores{Leases: e.leases, Index: e.index}, WithKind("item"))
	assert.ErrorContains(t, err, "state store")

	_, err = NewClient[item](Stores{Index: e.index}, WithKind("item"))
	assert.Error(t, err)

	_, err = NewClient[item](e.stores(), WithKind("item"), WithMode(Mode(7)))
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeSplit, ModeIndexOnly} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("blob")
	assert.Error(t, err)
}

type recorder struct {
	mu  sync.Mutex
	ops []Op
	err []error
}

func (r *recorder) Observe(op Op, kind string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	r.err = append(r.err, err)
}

func TestObserver(t *testing.T) {
	e := newEnv(t)
	rec := &recorder{}
	c := newClient[counter](t, e, WithObserver(rec), WithPolicy(lock.FailFast(time.Minute)))
	ctx := context.Background()

	s, err := c.Hold(ctx, "entity", "a")
	require.NoError(t, err)
	_, err = c.Hold(ctx, "entity", "a")
	require.Error(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Flush(ctx))
	_, err = c.Get(ctx, "entity", "a")
	require.NoError(t, err)

	assert.Equal(t, []Op{OpHold, OpHold, OpFlush, OpGet}, rec.ops)
	assert.NoError(t, rec.err[0])
	assert.True(t, errors.IsLockConflict(rec.err[1]))
}
