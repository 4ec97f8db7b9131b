// Package config loads service configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the root configuration.
type Config struct {
	Environment string         `koanf:"environment"`
	Server      ServerConfig   `koanf:"server"`
	Store       StoreConfig    `koanf:"store"`
	Tickets     TicketsConfig  `koanf:"tickets"`
	Security    SecurityConfig `koanf:"security"`
	Broker      BrokerConfig   `koanf:"broker"`
	Logging     LoggingConfig  `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	StaticDir       string        `koanf:"static_dir"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects and tunes the durable store.
type StoreConfig struct {
	Driver   string         `koanf:"driver"`
	Postgres PostgresConfig `koanf:"postgres"`
	Badger   BadgerConfig   `koanf:"badger"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `koanf:"host"`
	Port            string        `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	DBName          string        `koanf:"dbname"`
	SSLMode         string        `koanf:"sslmode"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// DSN builds a libpq-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
	// MaxRetries bounds commit retries after an optimistic conflict.
	MaxRetries int `koanf:"max_retries"`
}

// TicketsConfig governs pool generation and credentials.
type TicketsConfig struct {
	SigningSecret string        `koanf:"signing_secret"`
	CredentialTTL time.Duration `koanf:"credential_ttl"`
	MaxCapacity   int           `koanf:"max_capacity"`
	ClaimAttempts int           `koanf:"claim_attempts"`
}

// SecurityConfig covers CORS and request throttling.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// BrokerConfig configures domain event publication.
type BrokerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Buffer           int64         `koanf:"buffer"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsDevelopment reports whether relaxed checks apply.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.Postgres.Host == "" || c.Store.Postgres.DBName == "" {
			return fmt.Errorf("store.postgres host and dbname are required")
		}
	case DriverBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path is required unless in_memory is set")
		}
		if c.Store.Badger.MaxRetries <= 0 {
			return fmt.Errorf("store.badger.max_retries must be positive")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want %s or %s)", c.Store.Driver, DriverPostgres, DriverBadger)
	}
	if c.Tickets.SigningSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("tickets.signing_secret is required outside development")
	}
	if c.Tickets.SigningSecret != "" && len(c.Tickets.SigningSecret) < 32 {
		return fmt.Errorf("tickets.signing_secret must be at least 32 characters")
	}
	if c.Tickets.MaxCapacity <= 0 {
		return fmt.Errorf("tickets.max_capacity must be positive")
	}
	if c.Tickets.ClaimAttempts <= 0 {
		return fmt.Errorf("tickets.claim_attempts must be positive")
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitRequests <= 0 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("security rate limit requests and window must be positive")
	}
	return nil
}
