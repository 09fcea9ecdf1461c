// Package indextest is a conformance suite run by every index.Store backend.
package indextest

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enverbisevac/actors/index"
)

// Run executes the suite against stores returned by open.
func Run(t *testing.T, open func(t *testing.T) index.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		testGetMissing(t, open(t))
	})
	t.Run("UpsertGet", func(t *testing.T) {
		testUpsertGet(t, open(t))
	})
	t.Run("LastWriterWins", func(t *testing.T) {
		testLastWriterWins(t, open(t))
	})
	t.Run("Conditional", func(t *testing.T) {
		testConditional(t, open(t))
	})
	t.Run("KindsIsolated", func(t *testing.T) {
		testKindsIsolated(t, open(t))
	})
}

func rowKey() string {
	return uuid.NewString()
}

func testGetMissing(t *testing.T, s index.Store) {
	resp, err := s.Get(context.Background(), "Counter", "entity", rowKey())

	require.NoError(t, err)
	assert.True(t, resp.IsNotFound())
	assert.Nil(t, resp.Result)
}

func testUpsertGet(t *testing.T, s index.Store) {
	ctx := context.Background()
	rk := rowKey()

	put, err := s.Upsert(ctx, "Counter", index.Metadata{
		PartitionKey: "entity",
		RowKey:       rk,
		ETag:         index.MatchAny,
		Data:         json.RawMessage(`{"count":1}`),
	}, index.MatchAny)
	require.NoError(t, err)
	require.True(t, put.IsSuccess(), "status %d: %s", put.StatusCode, put.Message)
	assert.NotEmpty(t, put.ETag)
	assert.NotEqual(t, index.MatchAny, put.ETag)
	assert.False(t, put.Timestamp.IsZero())

	got, err := s.Get(ctx, "Counter", "entity", rk)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, got.StatusCode)
	require.NotNil(t, got.Result)
	assert.Equal(t, "entity", got.Result.PartitionKey)
	assert.Equal(t, rk, got.Result.RowKey)
	assert.Equal(t, put.ETag, got.Result.ETag)
	assert.Equal(t, put.ETag, got.ETag)
	assert.WithinDuration(t, put.Timestamp, got.Result.Timestamp, time.Millisecond)
	assert.JSONEq(t, `{"count":1}`, string(got.Result.Data))
}

func testLastWriterWins(t *testing.T, s index.Store) {
	ctx := context.Background()
	rk := rowKey()
	md := index.Metadata{PartitionKey: "entity", RowKey: rk}

	first, err := s.Upsert(ctx, "Counter", md, index.MatchAny)
	require.NoError(t, err)

	md.ETag = "stale-etag"
	md.Data = json.RawMessage(`{"count":2}`)
	second, err := s.Upsert(ctx, "Counter", md, index.MatchAny)
	require.NoError(t, err)
	require.True(t, second.IsSuccess())
	assert.NotEqual(t, first.ETag, second.ETag)

	got, err := s.Get(ctx, "Counter", "entity", rk)
	require.NoError(t, err)
	assert.Equal(t, second.ETag, got.ETag)
	assert.JSONEq(t, `{"count":2}`, string(got.Result.Data))
}

func testConditional(t *testing.T, s index.Store) {
	ctx := context.Background()
	rk := rowKey()
	md := index.Metadata{PartitionKey: "entity", RowKey: rk}

	missing, err := s.Upsert(ctx, "Counter", md, "some-etag")
	require.NoError(t, err)
	assert.True(t, missing.IsNotFound())

	put, err := s.Upsert(ctx, "Counter", md, index.MatchAny)
	require.NoError(t, err)

	stale, err := s.Upsert(ctx, "Counter", md, "not-"+put.ETag)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, stale.StatusCode)

	fresh, err := s.Upsert(ctx, "Counter", md, put.ETag)
	require.NoError(t, err)
	assert.True(t, fresh.IsSuccess())
	assert.NotEqual(t, put.ETag, fresh.ETag)
}

func testKindsIsolated(t *testing.T, s index.Store) {
	ctx := context.Background()
	rk := rowKey()

	_, err := s.Upsert(ctx, "Counter", index.Metadata{PartitionKey: "entity", RowKey: rk}, index.MatchAny)
	require.NoError(t, err)

	resp, err := s.Get(ctx, "Order", "entity", rk)
	require.NoError(t, err)
	assert.True(t, resp.IsNotFound())
}
