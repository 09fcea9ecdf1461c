package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/enverbisevac/actors/lease"
)

const DefaultPrefix = "entitylocks"

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Config holds the configuration for the redis lease store.
type Config struct {
	// Prefix namespaces every key written by the store.
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

// Store implements lease.Store with SET NX PX and token checked scripts.
type Store struct {
	config Config
	client redis.UniversalClient
}

func New(client redis.UniversalClient, options ...Option) *Store {
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
	return s.config.Prefix + ":lease:" + resource
}

func (s *Store) resources() string {
	return s.config.Prefix + ":resources"
}

// Ensure records resource in the namespace resource set.
func (s *Store) Ensure(ctx context.Context, resource string) error {
	if err := s.client.SAdd(ctx, s.resources(), resource).Err(); err != nil {
		return fmt.Errorf("redis: ensure %s: %w", resource, err)
	}
	return nil
}

// Resources lists every resource ever ensured in the namespace.
func (s *Store) Resources(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.resources()).Result()
}

func (s *Store) Acquire(ctx context.Context, resource string, d time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, s.key(resource), token, d).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire %s: %w", resource, err)
	}
	if !ok {
		return "", fmt.Errorf("redis: %s: %w", resource, lease.ErrConflict)
	}

	return token, nil
}

func (s *Store) Renew(ctx context.Context, resource, token string, d time.Duration) error {
	n, err := renewScript.Run(ctx, s.client, []string{s.key(resource)}, token, d.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: renew %s: %w", resource, err)
	}
	if n == 0 {
		return fmt.Errorf("redis: renew %s: %w", resource, lease.ErrNotHeld)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, resource, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{s.key(resource)}, token).Int()
	if err != nil {
		return fmt.Errorf("redis: release %s: %w", resource, err)
	}
	if n == 0 {
		return fmt.Errorf("redis: release %s: %w", resource, lease.ErrNotHeld)
	}
	return nil
}
