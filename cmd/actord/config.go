package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ACTORD"

type config struct {
	Listen string `mapstructure:"listen"`
	Server string `mapstructure:"server"`

	Lease string `mapstructure:"lease"`
	Index string `mapstructure:"index"`
	State string `mapstructure:"state"`
	Mode  string `mapstructure:"mode"`

	LockNamespace  string `mapstructure:"lock-namespace"`
	StateNamespace string `mapstructure:"state-namespace"`

	Retry         bool          `mapstructure:"retry"`
	RetryInterval time.Duration `mapstructure:"retry-interval"`
	RetryAttempts int           `mapstructure:"retry-attempts"`
	Timeout       time.Duration `mapstructure:"timeout"`

	PostgresURL           string   `mapstructure:"postgres-url"`
	RedisAddr             string   `mapstructure:"redis-addr"`
	AzureConnectionString string   `mapstructure:"azure-connection-string"`
	EtcdEndpoints         []string `mapstructure:"etcd-endpoints"`
	MongoURI              string   `mapstructure:"mongo-uri"`
	MongoDatabase         string   `mapstructure:"mongo-database"`

	Verbosity int `mapstructure:"verbosity"`
}

var (
	leaseBackends = []string{"memory", "postgres", "redis", "azure", "etcd"}
	indexBackends = []string{"memory", "postgres", "mongo"}
)

// serverFlags registers the flags shared by serve and the defaults of every
// key.
func serverFlags(fs *pflag.FlagSet) {
	fs.String("listen", ":8080", "address the HTTP server listens on")
	fs.String("lease", "memory", "lease backend: "+strings.Join(leaseBackends, "|"))
	fs.String("index", "memory", "index backend: "+strings.Join(indexBackends, "|"))
	fs.String("state", "mem://", "state bucket URL (mem://, file://, azblob://, s3://, pgblob://)")
	fs.String("mode", "split", "persistence mode: split|index-only")
	fs.String("lock-namespace", "entitylocks", "lock container, table or key prefix")
	fs.String("state-namespace", "entitystate", "state key prefix")
	fs.Bool("retry", true, "retry busy locks instead of failing fast")
	fs.Duration("retry-interval", 100*time.Millisecond, "delay between lock attempts")
	fs.Int("retry-attempts", 10, "lock attempts before giving up")
	fs.Duration("timeout", 0, "upper bound of a lock wait, 0 disables it")
	fs.String("postgres-url", "", "PostgreSQL connection string")
	fs.String("redis-addr", "localhost:6379", "redis address")
	fs.String("azure-connection-string", "", "Azure storage connection string")
	fs.StringSlice("etcd-endpoints", []string{"localhost:2379"}, "etcd endpoints")
	fs.String("mongo-uri", "mongodb://localhost:27017", "MongoDB URI")
	fs.String("mongo-database", "actors", "MongoDB database")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads file when given, then decodes flags, env and file into a
// config. Flags have to be bound before.
func loadConfig(v *viper.Viper, file string) (config, error) {
	var cfg config

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if !slices.Contains(leaseBackends, c.Lease) {
		return fmt.Errorf("unknown lease backend %q", c.Lease)
	}
	if !slices.Contains(indexBackends, c.Index) {
		return fmt.Errorf("unknown index backend %q", c.Index)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry-attempts must be positive, got %d", c.RetryAttempts)
	}
	return nil
}
