package pgx

// Config holds the configuration for the pgx lease store.
type Config struct {
	// Table holds one row per lock resource.
	Table string
}

// Option configures a lease store instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a lease store config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithTable returns an option that sets the lease table name. Lock
// namespaces map to tables, so independent deployments can share a database.
func WithTable(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Table = value
	})
}
