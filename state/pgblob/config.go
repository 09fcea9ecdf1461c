package pgblob

// DefaultTable stores actor payloads.
const DefaultTable = "entitystate"

type Config struct {
	Table string
}

// An Option configures a bucket.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a bucket config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithTable sets the table holding the objects.
func WithTable(s string) Option {
	return OptionFunc(func(c *Config) {
		if s != "" {
			c.Table = s
		}
	})
}

func newConfig(opts ...Option) Config {
	cfg := Config{Table: DefaultTable}
	for _, o := range opts {
		o.Apply(&cfg)
	}
	return cfg
}
