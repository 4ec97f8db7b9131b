//go:build integration

package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/database"
)

const postgresPort = "5432/tcp"

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// startPostgres runs a disposable PostgreSQL container and returns a
// migrated pool connected to it.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "eventbooking",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(postgresPort),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		t.Fatal(err)
	}

	pool, err := database.NewPool(ctx, config.PostgresConfig{
		Host:            host,
		Port:            port.Port(),
		User:            "postgres",
		Password:        "postgres",
		DBName:          "eventbooking",
		SSLMode:         "disable",
		MaxConns:        30,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MaxConnIdleTime: time.Minute,
		ConnectAttempts: 10,
		ConnectBackoff:  time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := startPostgres(t)
	storeContract(t, func(t *testing.T) Store {
		return NewPostgresStore(pool)
	})
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	pool := startPostgres(t)
	for i := 0; i < 2; i++ {
		if err := database.Migrate(context.Background(), pool); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}
