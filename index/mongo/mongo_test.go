package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/enverbisevac/actors/index"
	"github.com/enverbisevac/actors/index/indextest"
)

func getTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping mongo index tests")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("actors_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	return db
}

func TestConformance(t *testing.T) {
	db := getTestDatabase(t)

	indextest.Run(t, func(t *testing.T) index.Store {
		return New(db)
	})
}

func TestCollectionPrefix(t *testing.T) {
	db := getTestDatabase(t)
	ctx := context.Background()

	s := New(db, WithCollectionPrefix("idx_"))
	_, err := s.Upsert(ctx, "Counter", index.Metadata{PartitionKey: "p", RowKey: "r"}, index.MatchAny)
	require.NoError(t, err)

	names, err := db.ListCollectionNames(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, names, "idx_Counter")
}

func TestTimestampPrecision(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	s := &Store{now: func() time.Time { return fixed }}

	doc := document{Timestamp: s.now().UTC().Truncate(time.Millisecond)}

	assert.Equal(t, 123000000, doc.metadata().Timestamp.Nanosecond())
}
