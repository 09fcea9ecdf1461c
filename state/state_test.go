package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	"github.com/enverbisevac/actors/errors"
)

func TestBucket(t *testing.T) {
	ctx := context.Background()
	s := New(memblob.OpenBucket(nil))
	t.Cleanup(func() {
		_ = s.Close()
	})

	_, ok, err := s.Get(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := s.Exists(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put(ctx, "entity/a.json", []byte(`{"count":1}`)))
	require.NoError(t, s.Put(ctx, "entity/a.json", []byte(`{"count":2}`)))

	data, ok, err := s.Get(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"count":2}`, string(data))

	exists, err = s.Exists(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.True(t, exists)

	attrs, err := s.bucket.Attributes(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.Equal(t, ContentType, attrs.ContentType)
}

func TestOpenNamespace(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "mem://", "/entitystate/")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})

	require.NoError(t, s.Put(ctx, "entity/a.json", []byte(`{}`)))

	exists, err := s.Exists(ctx, "entity/a.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "nope://bucket", DefaultNamespace)
	assert.Error(t, err)
}

func TestPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, "file://"+filepath.ToSlash(dir), DefaultNamespace)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Put(ctx, "entity/a.json", []byte(`{}`)))

	data, err := os.ReadFile(filepath.Join(dir, DefaultNamespace, "entity", "a.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

type counter struct {
	Count int `json:"count"`
}

func TestDecodeEncode(t *testing.T) {
	c, err := Decode[counter]("entity", "a", []byte(`{"count":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count)

	data, err := Encode("entity", "a", c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, string(data))
}

func TestDecodeSerializationError(t *testing.T) {
	_, err := Decode[counter]("entity", "a", []byte(`{"count":"three"}`))

	serr, ok := errors.AsSerialization(err)
	require.True(t, ok, "expected serialization error, got %v", err)
	assert.Equal(t, "entity", serr.PartitionKey)
	assert.Equal(t, "a", serr.RowKey)
	assert.Equal(t, "state.counter", serr.Type)
}

func TestEncodeSerializationError(t *testing.T) {
	_, err := Encode("entity", "a", map[string]any{"f": func() {}})

	assert.True(t, errors.IsSerialization(err))
}
