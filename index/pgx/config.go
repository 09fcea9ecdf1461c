package pgx

import (
	"time"

	"github.com/enverbisevac/actors/cache"
)

// Config holds the configuration for the pgx index store.
type Config struct {
	// TablePrefix is joined with the record kind to name its table.
	TablePrefix string
	// TableTTL is how long a created table is remembered before the
	// CREATE TABLE IF NOT EXISTS statement is issued again.
	TableTTL time.Duration
	// Tables memoizes created tables. A private cache is used when nil.
	Tables cache.Cache[string]
}

type Option interface {
	Apply(*Config)
}

type OptionFunc func(*Config)

func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithTablePrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		c.TablePrefix = value
	})
}

func WithTableTTL(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.TableTTL = value
	})
}

func WithTableCache(value cache.Cache[string]) Option {
	return OptionFunc(func(c *Config) {
		c.Tables = value
	})
}
