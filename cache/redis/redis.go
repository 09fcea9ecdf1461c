// Package redis implements cache.Cache on redis. Values are stored as JSON
// so every process sharing the server sees the same entries.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enverbisevac/actors/cache"
)

var DefaultOperationTimeout = 10 * time.Second

type Config struct {
	Prefix  string
	Timeout time.Duration
}

// An Option configures a cache.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a cache config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithPrefix namespaces every key.
func WithPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Prefix = value
	})
}

// WithTimeout bounds each redis call.
func WithTimeout(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if value > 0 {
			c.Timeout = value
		}
	})
}

type Cache[V any] struct {
	client redis.UniversalClient
	config Config
}

var _ cache.Cache[string] = (*Cache[string])(nil)

func New[V any](client redis.UniversalClient, options ...Option) *Cache[V] {
	config := Config{Timeout: DefaultOperationTimeout}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &Cache[V]{client: client, config: config}
}

func (c *Cache[V]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.config.Timeout)
}

func (c *Cache[V]) key(k string) string {
	return c.config.Prefix + k
}

// Set stores value. A ttl <= 0 keeps it until removed.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	ctx, cancel := c.ctx()
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *Cache[V]) Get(key string) (V, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	var value V
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return value, cache.ErrNotFound
	}
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, nil
}

func (c *Cache[V]) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := c.ctx()
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Pop returns the value and removes it in one round trip.
func (c *Cache[V]) Pop(key string) (V, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	var value V
	data, err := c.client.GetDel(ctx, c.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return value, cache.ErrNotFound
	}
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, nil
}

// Keys lists keys starting with prefix, without the cache prefix.
func (c *Cache[V]) Keys(prefix string) []string {
	ctx, cancel := c.ctx()
	defer cancel()

	var out []string
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(c.config.Prefix):])
	}
	if iter.Err() != nil {
		return []string{}
	}
	return out
}
