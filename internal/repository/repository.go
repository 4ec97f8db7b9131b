// Package repository is the durable store behind the ticketing engine.
// Two implementations share one transactional contract: PostgreSQL (pgx,
// pessimistic row locks) and BadgerDB (optimistic, retried on conflict).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write lost a race: the record
// was no longer in the expected state at commit time. Callers may retry the
// whole transaction.
var ErrConflict = errors.New("concurrent modification")

// ErrDuplicate is returned when a write would violate a uniqueness rule.
var ErrDuplicate = errors.New("duplicate")

// Store runs transactions against the durable store.
//
// Update runs fn in a read-write transaction and commits if fn returns nil.
// Nothing fn wrote is visible to anyone if fn or the commit fails, or if ctx
// is done before the commit. View runs fn against a consistent snapshot.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	InsertEvent(ctx context.Context, e *model.Event) error
	InsertTickets(ctx context.Context, tickets []model.Ticket) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// LockEvent reads the event and serializes later writers to the same
	// event until this transaction ends.
	LockEvent(ctx context.Context, id string) (*model.Event, error)
	ListPublicEvents(ctx context.Context) ([]model.Event, error)

	// CountTickets returns the pool size and how many are still unclaimed.
	CountTickets(ctx context.Context, eventID string) (total, available int, err error)
	// NextUnclaimedTicket returns some unclaimed ticket of the event, or
	// ErrNotFound when the pool is exhausted. No ordering is promised.
	NextUnclaimedTicket(ctx context.Context, eventID string) (*model.Ticket, error)
	// ClaimTicket transitions a ticket unclaimed -> claimed. It returns
	// ErrConflict if the ticket was already claimed.
	ClaimTicket(ctx context.Context, ticketID, userID string, at time.Time) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)

	// InsertRegistration returns ErrDuplicate if the (event, user) pair
	// already has an active registration or the ticket is already bound.
	InsertRegistration(ctx context.Context, r *model.Registration) error
	ActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	RegistrationByTicket(ctx context.Context, ticketID string) (*model.Registration, error)
	// MarkAttended transitions confirmed -> attended. It returns ErrConflict
	// if the registration is no longer confirmed.
	MarkAttended(ctx context.Context, registrationID string, at time.Time) error
	ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)

	// InsertUser returns ErrDuplicate if the email is taken.
	InsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}
