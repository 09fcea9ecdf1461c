package actor

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/enverbisevac/actors/lock"
)

// Mode selects where payloads are persisted.
type Mode int

const (
	// ModeSplit keeps the payload in the state store and a pointer record in
	// the index.
	ModeSplit Mode = iota
	// ModeIndexOnly keeps the payload inside the index record.
	ModeIndexOnly
)

func (m Mode) String() string {
	switch m {
	case ModeSplit:
		return "split"
	case ModeIndexOnly:
		return "index-only"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "split":
		return ModeSplit, nil
	case "index-only", "index":
		return ModeIndexOnly, nil
	}
	return 0, fmt.Errorf("actor: unknown mode %q", s)
}

const DefaultReleaseTimeout = 10 * time.Second

type Config struct {
	Kind string
	Mode Mode
	// Factory is a func() T producing the payload of new records.
	Factory any
	// Policy overrides the policy of the lock service.
	Policy         *lock.Policy
	LockOptions    []lock.Option
	ReleaseTimeout time.Duration
	Observer       Observer
	Tracer         trace.Tracer
}

// An Option configures a client.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a client config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithKind sets the index namespace of the records.
func WithKind(kind string) Option {
	return OptionFunc(func(c *Config) {
		c.Kind = kind
	})
}

func WithMode(m Mode) Option {
	return OptionFunc(func(c *Config) {
		c.Mode = m
	})
}

// WithFactory sets the constructor of new payloads. T must match the client.
func WithFactory[T any](f func() T) Option {
	return OptionFunc(func(c *Config) {
		if f != nil {
			c.Factory = f
		}
	})
}

// WithPolicy replaces the acquisition policy, e.g. lock.FailFast.
func WithPolicy(p lock.Policy) Option {
	return OptionFunc(func(c *Config) {
		c.Policy = &p
	})
}

// WithLockOptions configures the lock service of the client.
func WithLockOptions(opts ...lock.Option) Option {
	return OptionFunc(func(c *Config) {
		c.LockOptions = append(c.LockOptions, opts...)
	})
}

// WithReleaseTimeout bounds the lease release done by Flush.
func WithReleaseTimeout(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if d > 0 {
			c.ReleaseTimeout = d
		}
	})
}

func WithObserver(o Observer) Option {
	return OptionFunc(func(c *Config) {
		c.Observer = o
	})
}

func WithTracer(t trace.Tracer) Option {
	return OptionFunc(func(c *Config) {
		c.Tracer = t
	})
}
