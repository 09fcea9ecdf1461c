// Package etcd implements lease.Store on etcd v3 leases. The lock key is put
// under a granted lease only when it has never been created, and the lease ID
// doubles as the holder token.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/enverbisevac/actors/lease"
)

const DefaultPrefix = "/entitylocks"

type Config struct {
	Prefix string
}

type Option interface {
	Apply(*Config)
}

type OptionFunc func(*Config)

func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Prefix = value
	})
}

type Store struct {
	config Config
	client *clientv3.Client
}

func New(client *clientv3.Client, options ...Option) *Store {
	config := Config{
		Prefix: DefaultPrefix,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	return &Store{
		config: config,
		client: client,
	}
}

func (s *Store) key(resource string) string {
	return s.config.Prefix + "/lease/" + resource
}

func (s *Store) placeholder(resource string) string {
	return s.config.Prefix + "/resources/" + resource
}

// Ensure writes the placeholder key once.
func (s *Store) Ensure(ctx context.Context, resource string) error {
	key := s.placeholder(resource)
	_, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "")).
		Commit()
	if err != nil {
		return fmt.Errorf("etcd: ensure %s: %w", resource, err)
	}
	return nil
}

func (s *Store) Acquire(ctx context.Context, resource string, d time.Duration) (string, error) {
	grant, err := s.client.Grant(ctx, ttlSeconds(d))
	if err != nil {
		return "", fmt.Errorf("etcd: grant %s: %w", resource, err)
	}

	key := s.key(resource)
	token := strconv.FormatInt(int64(grant.ID), 16)

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, token, clientv3.WithLease(grant.ID))).
		Commit()
	if err != nil {
		s.revoke(grant.ID)
		return "", fmt.Errorf("etcd: acquire %s: %w", resource, err)
	}
	if !resp.Succeeded {
		s.revoke(grant.ID)
		return "", fmt.Errorf("etcd: %s: %w", resource, lease.ErrConflict)
	}

	return token, nil
}

// Renew keeps the granted lease alive for its original TTL.
func (s *Store) Renew(ctx context.Context, resource, token string, _ time.Duration) error {
	id, err := parseToken(token)
	if err != nil {
		return fmt.Errorf("etcd: renew %s: %w", resource, lease.ErrNotHeld)
	}

	if _, err := s.client.KeepAliveOnce(ctx, id); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("etcd: renew %s: %w", resource, lease.ErrNotHeld)
		}
		return fmt.Errorf("etcd: renew %s: %w", resource, err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, resource, token string) error {
	id, err := parseToken(token)
	if err != nil {
		return fmt.Errorf("etcd: release %s: %w", resource, lease.ErrNotHeld)
	}

	key := s.key(resource)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", token)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("etcd: release %s: %w", resource, err)
	}

	s.revoke(id)

	if !resp.Succeeded {
		return fmt.Errorf("etcd: release %s: %w", resource, lease.ErrNotHeld)
	}
	return nil
}

func (s *Store) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.client.Revoke(ctx, id)
}

func parseToken(token string) (clientv3.LeaseID, error) {
	id, err := strconv.ParseInt(token, 16, 64)
	if err != nil {
		return 0, err
	}
	return clientv3.LeaseID(id), nil
}

func ttlSeconds(d time.Duration) int64 {
	return max(1, int64(math.Ceil(d.Seconds())))
}
