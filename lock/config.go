package lock

import "time"

// Config holds the acquisition settings shared by every lock of a Service.
type Config struct {
	// Retry selects the retry policy. When false locks fail fast.
	Retry bool
	// RetryAttempts bounds the number of lease requests under retry policy.
	RetryAttempts int
	// RetryInterval is the fixed wait between two lease requests.
	RetryInterval time.Duration
	// RetryLeaseDuration is the lease length requested under retry policy.
	RetryLeaseDuration time.Duration
	// FailFastLeaseDuration is the lease length requested under fail fast
	// policy.
	FailFastLeaseDuration time.Duration
	// Timeout bounds a whole acquisition. Zero means attempts and interval
	// are the only bound.
	Timeout time.Duration
}

// DefaultConfig returns retry enabled, 10 attempts 100ms apart.
func DefaultConfig() Config {
	return Config{
		Retry:                 true,
		RetryAttempts:         10,
		RetryInterval:         100 * time.Millisecond,
		RetryLeaseDuration:    15 * time.Second,
		FailFastLeaseDuration: 60 * time.Second,
	}
}

// Policy derives the acquisition policy from c.
func (c Config) Policy() Policy {
	p := FailFast(c.FailFastLeaseDuration)
	if c.Retry {
		p = Retry(c.RetryAttempts, c.RetryInterval, c.RetryLeaseDuration)
	}
	return p.WithTimeout(c.Timeout)
}

// Option configures a lock service instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a lock config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

func WithRetry(value bool) Option {
	return OptionFunc(func(c *Config) {
		c.Retry = value
	})
}

func WithRetryAttempts(value int) Option {
	return OptionFunc(func(c *Config) {
		c.RetryAttempts = value
	})
}

func WithRetryInterval(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.RetryInterval = value
	})
}

func WithRetryLeaseDuration(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.RetryLeaseDuration = value
	})
}

func WithFailFastLeaseDuration(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.FailFastLeaseDuration = value
	})
}

func WithTimeout(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.Timeout = value
	})
}

// WithConfig replaces the whole configuration.
func WithConfig(value Config) Option {
	return OptionFunc(func(c *Config) {
		*c = value
	})
}
