package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate clears every mapped variable and CONFIG_PATH, and runs the test
// from an empty directory so no stray config.yaml is picked up.
func isolate(t *testing.T) {
	t.Helper()
	for env := range envMappings {
		t.Setenv(strings.ToUpper(env), "")
		os.Unsetenv(strings.ToUpper(env))
	}
	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverPostgres)
	}
	if cfg.Store.Postgres.DBName != "eventbooking" {
		t.Errorf("Postgres.DBName = %q, want eventbooking", cfg.Store.Postgres.DBName)
	}
	if cfg.Tickets.MaxCapacity != 10000 {
		t.Errorf("Tickets.MaxCapacity = %d, want 10000", cfg.Tickets.MaxCapacity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"PORT":                  "server.port",
		"DB_HOST":               "store.postgres.host",
		"DB_NAME":               "store.postgres.dbname",
		"BADGER_IN_MEMORY":      "store.badger.in_memory",
		"TICKET_SIGNING_SECRET": "tickets.signing_secret",
		"log_level":             "logging.level",
		"HOME":                  "",
		"PATH":                  "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_EnvVars(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "badger")
	t.Setenv("BADGER_IN_MEMORY", "true")
	t.Setenv("TICKET_CREDENTIAL_TTL", "72h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Driver != DriverBadger || !cfg.Store.Badger.InMemory {
		t.Errorf("Store = %+v, want in-memory badger", cfg.Store)
	}
	if cfg.Tickets.CredentialTTL != 72*time.Hour {
		t.Errorf("CredentialTTL = %v, want 72h", cfg.Tickets.CredentialTTL)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	yaml := `
server:
  port: 7000
store:
  postgres:
    host: db.internal
    dbname: tickets
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("DB_HOST", "db.override")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 from file", cfg.Server.Port)
	}
	if cfg.Store.Postgres.DBName != "tickets" {
		t.Errorf("DBName = %q, want tickets from file", cfg.Store.Postgres.DBName)
	}
	if cfg.Store.Postgres.Host != "db.override" {
		t.Errorf("Host = %q, env should override file", cfg.Store.Postgres.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "unknown store.driver"},
		{name: "badger without path", mutate: func(c *Config) {
			c.Store.Driver = DriverBadger
			c.Store.Badger.Path = ""
		}, wantErr: "store.badger.path"},
		{name: "badger in memory", mutate: func(c *Config) {
			c.Store.Driver = DriverBadger
			c.Store.Badger.Path = ""
			c.Store.Badger.InMemory = true
		}},
		{name: "production needs secret", mutate: func(c *Config) { c.Environment = "production" }, wantErr: "signing_secret is required"},
		{name: "short secret", mutate: func(c *Config) { c.Tickets.SigningSecret = "short" }, wantErr: "at least 32"},
		{name: "zero max capacity", mutate: func(c *Config) { c.Tickets.MaxCapacity = 0 }, wantErr: "max_capacity"},
		{name: "rate limit disabled", mutate: func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitRequests = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := defaultConfig().Store.Postgres.DSN()
	want := "host=localhost port=5432 user=postgres password=postgres dbname=eventbooking sslmode=disable"
	if dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}
