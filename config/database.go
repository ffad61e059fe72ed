package config

import (
	"errors"
	"time"
)

// DBConfig holds the Postgres connection that backs the credential store.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"wallmag"`
	Password string `env:"PASSWORD" envDefault:"wallmag"`
	Name     string `env:"NAME"     envDefault:"wallmag"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"5m"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig holds the Redis connection for the session registry, rate
// counters and audit trail. Either a single node (URI) or a Sentinel-managed
// primary is supported; all keys must live on one primary because revocation
// scans and audit reads span key prefixes.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
}

// Validate checks the Redis topology settings.
func (c *RedisConfig) Validate() error {
	if c.UseSentinel {
		if len(c.SentinelNodes) == 0 || c.SentinelMasterName == "" {
			return errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_NODES and REDIS_SENTINEL_MASTER_NAME")
		}
		return nil
	}
	if c.URI == "" {
		return errors.New("REDIS_URI is required")
	}
	return nil
}
