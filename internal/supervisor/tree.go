// Package supervisor runs the long-lived parts of the service (the HTTP
// server and the notification worker) under a suture supervision tree, so a
// crashed component is restarted with backoff instead of taking the process
// down.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
)

// TreeConfig tunes restart behaviour. Zero values take suture's defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func (c *TreeConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Tree has two layers: messaging (domain event consumers) and api (the HTTP
// server). A failing consumer never restarts the API.
type Tree struct {
	root      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

// NewTree builds the root supervisor with its messaging and api layers.
func NewTree(cfg TreeConfig) *Tree {
	cfg.applyDefaults()

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = logEvent

	t := &Tree{
		root:      suture.New("event-ticketing", rootSpec),
		messaging: suture.New("messaging", spec),
		api:       suture.New("api", spec),
	}
	t.root.Add(t.messaging)
	t.root.Add(t.api)
	return t
}

// AddMessagingService supervises a domain event consumer.
func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService supervises the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is done and every service has stopped.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// logEvent forwards supervisor events (panics, restarts, backoff) to the
// structured log.
func logEvent(e suture.Event) {
	logging.Warn().Fields(e.Map()).Msg(e.String())
}
