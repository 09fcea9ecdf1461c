// Package mongo implements index.Store with one MongoDB collection per
// record kind.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/enverbisevac/actors/index"
)

type Config struct {
	// CollectionPrefix is prepended to the kind to name its collection.
	CollectionPrefix string
}

type Option interface {
	Apply(*Config)
}

type OptionFunc func(*Config)

func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithCollectionPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		c.CollectionPrefix = value
	})
}

type id struct {
	PartitionKey string `bson:"pk"`
	RowKey       string `bson:"rk"`
}

type document struct {
	ID        id        `bson:"_id"`
	ETag      string    `bson:"etag"`
	Data      []byte    `bson:"data,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

func (d document) metadata() index.Metadata {
	return index.Metadata{
		PartitionKey: d.ID.PartitionKey,
		RowKey:       d.ID.RowKey,
		ETag:         d.ETag,
		Data:         d.Data,
		Timestamp:    d.Timestamp.UTC(),
	}
}

type Store struct {
	config Config
	db     *mongo.Database
	now    func() time.Time
}

func New(db *mongo.Database, options ...Option) *Store {
	config := Config{}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Store{
		config: config,
		db:     db,
		now:    time.Now,
	}
}

func (s *Store) collection(kind string) *mongo.Collection {
	return s.db.Collection(s.config.CollectionPrefix + kind)
}

func (s *Store) Get(ctx context.Context, kind, pk, rk string) (index.Response, error) {
	var doc document
	err := s.collection(kind).FindOne(ctx, bson.M{"_id": id{pk, rk}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return index.NotFound(), nil
	}
	if err != nil {
		return index.Response{}, fmt.Errorf("mongo: get %s/%s: %w", pk, rk, err)
	}

	return index.Found(doc.metadata()), nil
}

func (s *Store) Upsert(ctx context.Context, kind string, md index.Metadata, match string) (index.Response, error) {
	doc := document{
		ID:        id{md.PartitionKey, md.RowKey},
		ETag:      uuid.NewString(),
		Data:      md.Data,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}
	coll := s.collection(kind)

	if match == index.MatchAny {
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return index.Response{}, fmt.Errorf("mongo: upsert %s/%s: %w", md.PartitionKey, md.RowKey, err)
		}
		return index.Written(doc.metadata()), nil
	}

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID, "etag": match}, doc)
	if err != nil {
		return index.Response{}, fmt.Errorf("mongo: replace %s/%s: %w", md.PartitionKey, md.RowKey, err)
	}
	if res.MatchedCount == 0 {
		current, err := s.Get(ctx, kind, md.PartitionKey, md.RowKey)
		if err != nil || current.IsNotFound() {
			return current, err
		}
		return index.PreconditionFailed(current.ETag), nil
	}

	return index.Written(doc.metadata()), nil
}
