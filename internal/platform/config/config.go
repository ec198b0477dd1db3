// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, session store) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// envPrefix namespaces every variable read by [Load].
const envPrefix = "HAII_"

// defaultJWTSecret is the development placeholder. It is rejected in production.
const defaultJWTSecret = "change-me"

// # Configuration Schema

// Config holds all runtime configuration for the authentication API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8000"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`
	APIPrefix   string `env:"API_PREFIX"   envDefault:"/v1"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis), used for login throttling
	RedisURL string `env:"REDIS_URL,required"`

	// Cross-Origin Resource Sharing
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173,http://localhost:4173,http://127.0.0.1:4173"`

	// Bearer credential signing
	JWTSecret         string `env:"JWT_SECRET"           envDefault:"change-me"`
	JWTAlgorithm      string `env:"JWT_ALGORITHM"        envDefault:"HS256"`
	JWTExpMinutes     int    `env:"JWT_EXP_MINUTES"      envDefault:"60"`
	JWTRefreshExpDays int    `env:"JWT_REFRESH_EXP_DAYS" envDefault:"30"`
	BcryptWorkFactor  int    `env:"BCRYPT_WORK_FACTOR"   envDefault:"12"`

	// Browser session cookie
	SessionCookieName       string  `env:"SESSION_COOKIE_NAME"        envDefault:"haii_session"`
	SessionCookieSecure     bool    `env:"SESSION_COOKIE_SECURE"      envDefault:"false"`
	SessionTTLHours         float64 `env:"SESSION_TTL_HOURS"          envDefault:"3"`
	SessionAbsoluteTTLHours float64 `env:"SESSION_ABSOLUTE_TTL_HOURS" envDefault:"24"`

	// Bootstrap administrator
	AdminEmail    string `env:"ADMIN_EMAIL"    envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"adminpw"`

	// Login throttling
	LoginMaxFailures   int           `env:"LOGIN_MAX_FAILURES"   envDefault:"10"`
	LoginFailureWindow time.Duration `env:"LOGIN_FAILURE_WINDOW" envDefault:"15m"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses configuration from the given environment map instead of the
// process environment. A nil map reads the process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	cfg := &Config{}

	options := env.Options{Prefix: envPrefix}
	if environment != nil {
		options.Environment = environment
	}

	// This will fail if any field marked with 'required' is missing.
	if err := env.ParseWithOptions(cfg, options); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var problems []string

	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		problems = append(problems, fmt.Sprintf("unsupported JWT_ALGORITHM %q", c.JWTAlgorithm))
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, "JWT_SECRET must not be empty")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		problems = append(problems, "JWT_SECRET must be overridden in production")
	}
	if c.JWTExpMinutes <= 0 {
		problems = append(problems, "JWT_EXP_MINUTES must be positive")
	}
	if c.JWTRefreshExpDays <= 0 {
		problems = append(problems, "JWT_REFRESH_EXP_DAYS must be positive")
	}
	if c.SessionTTLHours <= 0 || c.SessionAbsoluteTTLHours <= 0 {
		problems = append(problems, "session TTLs must be positive")
	}
	if c.SessionTTLHours > c.SessionAbsoluteTTLHours {
		problems = append(problems, "SESSION_TTL_HOURS must not exceed SESSION_ABSOLUTE_TTL_HOURS")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		problems = append(problems, "SESSION_COOKIE_NAME must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %w", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// # Derived Durations

// RollingTTL is the sliding session window refreshed on every validated request.
func (c *Config) RollingTTL() time.Duration {
	return hours(c.SessionTTLHours)
}

// AbsoluteTTL is the hard ceiling set once when a session is created.
func (c *Config) AbsoluteTTL() time.Duration {
	return hours(c.SessionAbsoluteTTLHours)
}

// AccessTTL is the bearer credential lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTExpMinutes) * time.Minute
}

// RefreshTTL is the refresh credential lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshExpDays) * 24 * time.Hour
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func hours(value float64) time.Duration {
	return time.Duration(value * float64(time.Hour))
}
