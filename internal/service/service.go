// Package service implements the ticketing engine: pool generation at event
// creation, ticket allocation on registration, and check-in validation. It
// sits between the HTTP handlers and the durable store.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/credential"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
)

// EventPublisher receives domain events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Config tunes the engine.
type Config struct {
	// MaxCapacity caps the pool size generated for a single event.
	MaxCapacity int
	// Attempts bounds how many times a transaction that lost a race is
	// re-run before the request fails.
	Attempts int
}

// EventService orchestrates event, allocation and check-in operations.
type EventService struct {
	store  repository.Store
	signer *credential.Signer
	events EventPublisher
	cfg    Config
	now    func() time.Time
}

// NewEventService constructs an EventService. events may be nil, in which
// case no domain events are published.
func NewEventService(
	store repository.Store,
	signer *credential.Signer,
	events EventPublisher,
	cfg Config,
) *EventService {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &EventService{
		store:  store,
		signer: signer,
		events: events,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// update runs fn in a write transaction, re-running it while the store
// reports a lost race.
func update(ctx context.Context, store repository.Store, attempts int, fn func(repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = store.Update(ctx, fn)
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		logging.Ctx(ctx).Debug().Int("attempt", attempt).Msg("transaction lost a race, retrying")
	}
	return err
}

func (s *EventService) publish(ctx context.Context, topic string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, topic, payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("failed to publish domain event")
	}
}
