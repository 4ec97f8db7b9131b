// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/broker"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/credential"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	// ── 2. Open the durable store ────────────────────────────────────────
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	logging.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	// ── 3. Ticket credentials ────────────────────────────────────────────
	secret := cfg.Tickets.SigningSecret
	if secret == "" {
		// Only reachable in development; Validate refuses it elsewhere.
		if secret, err = credential.RandomSecret(); err != nil {
			return fmt.Errorf("generate signing secret: %w", err)
		}
		logging.Warn().Msg("no ticket signing secret configured, using a random one; credentials will not survive a restart")
	}
	signer, err := credential.NewSigner(secret, cfg.Tickets.CredentialTTL)
	if err != nil {
		return fmt.Errorf("credential signer: %w", err)
	}

	// ── 4. Domain events ─────────────────────────────────────────────────
	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})

	var events service.EventPublisher
	if cfg.Broker.Enabled {
		pubsub := broker.NewGoChannel(cfg.Broker)
		publisher := broker.NewPublisher(pubsub, cfg.Broker)
		defer publisher.Close()

		tree.AddMessagingService(broker.NewWorker(pubsub, broker.LogNotifier{}))
		events = publisher
	}

	// ── 5. Wire up layers ────────────────────────────────────────────────
	eventSvc := service.NewEventService(store, signer, events, service.Config{
		MaxCapacity: cfg.Tickets.MaxCapacity,
		Attempts:    cfg.Tickets.ClaimAttempts,
	})
	userSvc := service.NewUserService(store, cfg.Tickets.ClaimAttempts)

	router := handler.NewRouter(handler.RouterConfig{
		Events:    eventSvc,
		Users:     userSvc,
		Store:     store,
		Security:  cfg.Security,
		StaticDir: cfg.Server.StaticDir,
	})

	// ── 6. Serve until SIGINT/SIGTERM, then shut down gracefully ─────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, srv.Addr, cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// openStore connects the configured driver and returns it behind the
// transactional Store interface.
func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		db, err := database.OpenBadger(cfg.Badger)
		if err != nil {
			return nil, err
		}
		return repository.NewBadgerStore(db, cfg.Badger.MaxRetries), nil

	default:
		pool, err := database.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return repository.NewPostgresStore(pool), nil
	}
}
