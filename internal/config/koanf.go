package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/event-ticketing/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "",
		},
		Store: StoreConfig{
			Driver: DriverPostgres,
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            "5432",
				User:            "postgres",
				Password:        "postgres",
				DBName:          "eventbooking",
				SSLMode:         "disable",
				MaxConns:        20,
				MinConns:        2,
				MaxConnLifetime: 30 * time.Minute,
				MaxConnIdleTime: 5 * time.Minute,
				ConnectAttempts: 5,
				ConnectBackoff:  2 * time.Second,
			},
			Badger: BadgerConfig{
				Path:       "/data/tickets.badger",
				InMemory:   false,
				MaxRetries: 64,
			},
		},
		Tickets: TicketsConfig{
			SigningSecret: "",
			CredentialTTL: 0,
			MaxCapacity:   10000,
			ClaimAttempts: 16,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Broker: BrokerConfig{
			Enabled:          true,
			Buffer:           256,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration with precedence ENV > file > defaults and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings keeps the deployment variable names (PORT, DB_*) working
// alongside the namespaced ones.
var envMappings = map[string]string{
	"environment": "environment",
	"app_env":     "environment",

	"port":                     "server.port",
	"http_host":                "server.host",
	"http_port":                "server.port",
	"http_read_timeout":        "server.read_timeout",
	"http_write_timeout":       "server.write_timeout",
	"http_idle_timeout":        "server.idle_timeout",
	"http_shutdown_timeout":    "server.shutdown_timeout",
	"static_dir":               "server.static_dir",
	"store_driver":             "store.driver",
	"db_host":                  "store.postgres.host",
	"db_port":                  "store.postgres.port",
	"db_user":                  "store.postgres.user",
	"db_password":              "store.postgres.password",
	"db_name":                  "store.postgres.dbname",
	"db_sslmode":               "store.postgres.sslmode",
	"db_max_conns":             "store.postgres.max_conns",
	"db_min_conns":             "store.postgres.min_conns",
	"db_connect_attempts":      "store.postgres.connect_attempts",
	"db_connect_backoff":       "store.postgres.connect_backoff",
	"badger_path":              "store.badger.path",
	"badger_in_memory":         "store.badger.in_memory",
	"badger_max_retries":       "store.badger.max_retries",
	"ticket_signing_secret":    "tickets.signing_secret",
	"ticket_credential_ttl":    "tickets.credential_ttl",
	"ticket_max_capacity":      "tickets.max_capacity",
	"ticket_claim_attempts":    "tickets.claim_attempts",
	"cors_origins":             "security.cors_origins",
	"rate_limit_requests":      "security.rate_limit_requests",
	"rate_limit_window":        "security.rate_limit_window",
	"disable_rate_limit":       "security.rate_limit_disabled",
	"broker_enabled":           "broker.enabled",
	"broker_buffer":            "broker.buffer",
	"broker_failure_threshold": "broker.failure_threshold",
	"broker_open_timeout":      "broker.open_timeout",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
