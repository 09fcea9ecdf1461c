package inmem

import (
	"strings"
	"sync"
	"time"

	"github.com/enverbisevac/actors/cache"
)

var (
	_ cache.Cache[any] = (*Cache[any])(nil)
)

// item represents a cache item with a value and an expiration time. A zero
// expiry never expires.
type item[V any] struct {
	value  V
	expiry time.Time
}

func (i item[V]) isExpired(now time.Time) bool {
	return !i.expiry.IsZero() && now.After(i.expiry)
}

type Config struct {
	// CleanupInterval is the period of the expired item sweep.
	CleanupInterval time.Duration
}

type Option interface {
	Apply(*Config)
}

type OptionFunc func(*Config)

func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithCleanupInterval(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.CleanupInterval = value
	})
}

// Cache is an in-memory cache.Cache. Close stops the background sweep.
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]item[V]
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a cache and starts the sweep goroutine.
func New[V any](options ...Option) *Cache[V] {
	config := Config{
		CleanupInterval: 5 * time.Second,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	c := &Cache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
		done:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.janitor(config.CleanupInterval)

	return c
}

func (c *Cache[V]) janitor(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if item.isExpired(now) {
			delete(c.items, key)
		}
	}
}

// Set stores value under key. ttl <= 0 keeps the item until removed.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiry time.Time
	if ttl > 0 {
		expiry = c.now().Add(ttl)
	}
	c.items[key] = item[V]{
		value:  value,
		expiry: expiry,
	}
	return nil
}

func (c *Cache[V]) Get(key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || item.isExpired(c.now()) {
		delete(c.items, key)
		var zero V
		return zero, cache.ErrNotFound
	}

	return item.value, nil
}

func (c *Cache[V]) Remove(keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

// Pop removes key and returns its value.
func (c *Cache[V]) Pop(key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	delete(c.items, key)
	if !found || item.isExpired(c.now()) {
		var zero V
		return zero, cache.ErrNotFound
	}

	return item.value, nil
}

// Keys lists live keys starting with prefix.
func (c *Cache[V]) Keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for key, item := range c.items {
		if strings.HasPrefix(key, prefix) && !item.isExpired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Close stops the sweep goroutine.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}
