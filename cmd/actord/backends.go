package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/enverbisevac/actors/actor"
	cacheredis "github.com/enverbisevac/actors/cache/redis"
	"github.com/enverbisevac/actors/errors"
	"github.com/enverbisevac/actors/index"
	indexinmem "github.com/enverbisevac/actors/index/inmem"
	indexmongo "github.com/enverbisevac/actors/index/mongo"
	indexpgx "github.com/enverbisevac/actors/index/pgx"
	"github.com/enverbisevac/actors/lease"
	leaseazblob "github.com/enverbisevac/actors/lease/azblob"
	leaseetcd "github.com/enverbisevac/actors/lease/etcd"
	leaseinmem "github.com/enverbisevac/actors/lease/inmem"
	leasepgx "github.com/enverbisevac/actors/lease/pgx"
	leaseredis "github.com/enverbisevac/actors/lease/redis"
	"github.com/enverbisevac/actors/state"
)

// backends owns the connections behind actor.Stores.
type backends struct {
	stores  actor.Stores
	redis   *redis.Client
	closers []func() error
}

func (b *backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases connections in reverse order of creation.
func (b *backends) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, b.closers[i]())
	}
	b.closers = nil
	return err
}

func openBackends(ctx context.Context, cfg config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Lease == "postgres" || cfg.Index == "postgres" {
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres-url is required for the postgres backend")
		}
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.onClose(func() error {
			pool.Close()
			return nil
		})
	}

	if b.stores.Leases, err = openLeases(ctx, cfg, pool, b); err != nil {
		return nil, err
	}
	if b.stores.Index, err = openIndex(ctx, cfg, pool, b); err != nil {
		return nil, err
	}

	mode, err := actor.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if mode == actor.ModeSplit {
		bucket, err := state.Open(ctx, cfg.State, cfg.StateNamespace)
		if err != nil {
			return nil, err
		}
		b.onClose(bucket.Close)
		b.stores.State = bucket
	}

	logr.FromContextOrDiscard(ctx).Info("backends ready",
		"lease", cfg.Lease, "index", cfg.Index, "mode", mode.String())
	return b, nil
}

func openLeases(ctx context.Context, cfg config, pool *pgxpool.Pool, b *backends) (lease.Store, error) {
	switch cfg.Lease {
	case "memory":
		return leaseinmem.New(), nil
	case "postgres":
		s := leasepgx.New(pool, leasepgx.WithTable(cfg.LockNamespace))
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.redis = client
		return leaseredis.New(client, leaseredis.WithPrefix(cfg.LockNamespace)), nil
	case "azure":
		return leaseazblob.NewFromConnectionString(cfg.AzureConnectionString,
			leaseazblob.WithContainer(cfg.LockNamespace))
	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
			Context:     ctx,
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		b.onClose(client.Close)
		return leaseetcd.New(client, leaseetcd.WithPrefix("/"+cfg.LockNamespace)), nil
	}
	return nil, fmt.Errorf("unknown lease backend %q", cfg.Lease)
}

func openIndex(ctx context.Context, cfg config, pool *pgxpool.Pool, b *backends) (index.Store, error) {
	switch cfg.Index {
	case "memory":
		return indexinmem.New(), nil
	case "postgres":
		var opts []indexpgx.Option
		if b.redis != nil {
			// processes sharing the lease server also share the table memo
			opts = append(opts, indexpgx.WithTableCache(
				cacheredis.New[string](b.redis, cacheredis.WithPrefix(cfg.LockNamespace+":tables:"))))
		}
		s := indexpgx.New(pool, opts...)
		b.onClose(s.Close)
		return s, nil
	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.onClose(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		return indexmongo.New(client.Database(cfg.MongoDatabase)), nil
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.Index)
}
