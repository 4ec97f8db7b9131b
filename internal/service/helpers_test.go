package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/credential"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type published struct {
	topic   string
	payload any
}

// recordingPublisher captures domain events instead of sending them.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.topic == topic {
			n++
		}
	}
	return n
}

type engine struct {
	events *EventService
	users  *UserService
	store  repository.Store
	pub    *recordingPublisher
	signer *credential.Signer
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	store := repository.NewBadgerStore(db, 1000)
	t.Cleanup(func() { _ = store.Close() })

	signer, err := credential.NewSigner(testSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	return &engine{
		events: NewEventService(store, signer, pub, Config{MaxCapacity: 1000, Attempts: 50}),
		users:  NewUserService(store, 50),
		store:  store,
		pub:    pub,
		signer: signer,
	}
}

func (e *engine) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), model.CreateUserRequest{
		Email:     name + "@example.com",
		FirstName: name,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// bookingResult is what one concurrent registration attempt produced.
type bookingResult struct {
	UserID   string
	TicketID string
	Err      error
}

func (e *engine) event(t *testing.T, capacity int) *model.Event {
	t.Helper()
	organizer := e.user(t, "organizer-"+uuid.NewString()[:8])
	resp, err := e.events.CreateEvent(context.Background(), model.CreateEventRequest{
		Title:       "Go Meetup",
		Date:        "2026-11-20T18:30:00Z",
		Location:    "Hall A",
		OrganizerID: organizer.ID,
		Capacity:    model.NewInt(capacity),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return &resp.Event
}

func (e *engine) available(t *testing.T, eventID string) int {
	t.Helper()
	d, err := e.events.GetEventDetail(context.Background(), eventID)
	if err != nil {
		t.Fatalf("event detail: %v", err)
	}
	return d.AvailableTickets
}

func (e *engine) register(t *testing.T, eventID, userID string) *model.RegistrationResult {
	t.Helper()
	res, err := e.events.Register(context.Background(), eventID, model.RegisterRequest{UserID: userID})
	if err != nil {
		t.Fatalf("register %s: %v", userID, err)
	}
	return res
}

var errDiskGone = errors.New("disk gone")

// brokenStore fails every transaction.
type brokenStore struct{}

func (brokenStore) Update(context.Context, func(repository.Tx) error) error { return errDiskGone }
func (brokenStore) View(context.Context, func(repository.Tx) error) error { return errDiskGone }
func (brokenStore) Ping(context.Context) error { return errDiskGone }
func (brokenStore) Close() error { return nil }
