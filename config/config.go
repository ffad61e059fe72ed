// Package config declares the environment-driven settings of the wallmag
// API. Fields are bound with github.com/caarlos0/env; each concern lives in
// its own file (auth.go, database.go, http.go, observability.go).
package config

import (
	"errors"
	"os"
	"strings"
)

type AppConfig struct {
	// IsDev enables dev login, insecure cookies and generated signing keys.
	// APP_ENV=development (or dev) also turns it on.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Observability ObservabilityConfig
}

// Sanitize normalizes values after env parsing. Call it before Validate.
func (c *AppConfig) Sanitize() {
	if !c.IsDev {
		switch strings.ToLower(os.Getenv("APP_ENV")) {
		case "development", "dev":
			c.IsDev = true
		}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.HTTP.Sanitize()
	c.Auth.Sanitize()
	c.Observability.Sanitize()
}

// Validate returns every problem that would keep the server from starting.
func (c *AppConfig) Validate() error {
	return errors.Join(
		c.Auth.Validate(c.IsDev),
		c.HTTP.Validate(),
		c.Redis.Validate(),
	)
}
