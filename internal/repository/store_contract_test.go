package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, open func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"event and pool are written together", testEventAndPool},
		{"failed update leaves nothing behind", testUpdateRollback},
		{"cancelled context discards writes", testUpdateCancelled},
		{"claim is a compare-and-swap", testClaimCAS},
		{"exhausted pool reports not found", testPoolExhausted},
		{"one active registration per event and user", testActiveRegistrationUnique},
		{"attendance is a compare-and-swap", testMarkAttendedCAS},
		{"user email is unique", testUserEmailUnique},
		{"private events are not listed", testListPublicEvents},
		{"registration listings", testListRegistrations},
		{"concurrent claims never exceed the pool", testConcurrentClaims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func newUser(t *testing.T, s Store) *model.User {
	t.Helper()
	id := uuid.NewString()
	u := &model.User{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: "Test",
		Role:      model.RoleParticipant,
		CreatedAt: time.Now().UTC(),
	}
	err := s.Update(context.Background(), func(tx Tx) error {
		return tx.InsertUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

func newEvent(t *testing.T, s Store, capacity int, private bool) (*model.Event, []model.Ticket) {
	t.Helper()
	org := newUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := &model.Event{
		ID:          uuid.NewString(),
		Title:       "Event",
		Date:        now.Add(24 * time.Hour),
		OrganizerID: org.ID,
		Capacity:    capacity,
		IsPrivate:   private,
		CreatedAt:   now,
	}
	tickets := make([]model.Ticket, capacity)
	for i := range tickets {
		tickets[i] = model.Ticket{ID: uuid.NewString(), EventID: e.ID, CreatedAt: now}
	}
	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.InsertEvent(context.Background(), e); err != nil {
			return err
		}
		return tx.InsertTickets(context.Background(), tickets)
	})
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return e, tickets
}

func counts(t *testing.T, s Store, eventID string) (total, available int) {
	t.Helper()
	err := s.View(context.Background(), func(tx Tx) error {
		var err error
		total, available, err = tx.CountTickets(context.Background(), eventID)
		return err
	})
	if err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	return total, available
}

// claim takes some unclaimed ticket for user and records a registration.
func claim(ctx context.Context, s Store, eventID, userID string) (*model.Registration, error) {
	var reg *model.Registration
	err := s.Update(ctx, func(tx Tx) error {
		if _, err := tx.LockEvent(ctx, eventID); err != nil {
			return err
		}
		tk, err := tx.NextUnclaimedTicket(ctx, eventID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.ClaimTicket(ctx, tk.ID, userID, now); err != nil {
			return err
		}
		reg = &model.Registration{
			ID:           uuid.NewString(),
			EventID:      eventID,
			UserID:       userID,
			TicketID:     tk.ID,
			Status:       model.RegistrationConfirmed,
			RegisteredAt: now,
		}
		return tx.InsertRegistration(ctx, reg)
	})
	return reg, err
}

func testEventAndPool(t *testing.T, s Store) {
	e, tickets := newEvent(t, s, 5, false)

	total, available := counts(t, s, e.ID)
	if total != 5 || available != 5 {
		t.Fatalf("counts = (%d, %d), want (5, 5)", total, available)
	}

	err := s.View(context.Background(), func(tx Tx) error {
		got, err := tx.GetEvent(context.Background(), e.ID)
		if err != nil {
			return err
		}
		if got.Capacity != 5 || got.OrganizerID != e.OrganizerID {
			return fmt.Errorf("event = %+v", got)
		}
		tk, err := tx.GetTicket(context.Background(), tickets[2].ID)
		if err != nil {
			return err
		}
		if tk.EventID != e.ID || tk.Claimed {
			return fmt.Errorf("ticket = %+v", tk)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testUpdateRollback(t *testing.T, s Store) {
	org := newUser(t, s)
	boom := errors.New("boom")
	e := &model.Event{ID: uuid.NewString(), Title: "x", OrganizerID: org.ID, Capacity: 1, CreatedAt: time.Now().UTC()}

	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.InsertEvent(context.Background(), e); err != nil {
			return err
		}
		if err := tx.InsertTickets(context.Background(), []model.Ticket{{ID: uuid.NewString(), EventID: e.ID, CreatedAt: e.CreatedAt}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	err = s.View(context.Background(), func(tx Tx) error {
		_, err := tx.GetEvent(context.Background(), e.ID)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("event visible after failed update: %v", err)
	}
	if total, _ := counts(t, s, e.ID); total != 0 {
		t.Fatalf("%d tickets visible after failed update", total)
	}
}

func testUpdateCancelled(t *testing.T, s Store) {
	e, _ := newEvent(t, s, 1, false)
	u := newUser(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Update(ctx, func(tx Tx) error {
		tk, err := tx.NextUnclaimedTicket(ctx, e.ID)
		if err != nil {
			return err
		}
		if err := tx.ClaimTicket(ctx, tk.ID, u.ID, time.Now().UTC()); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Update error = %v, want context.Canceled", err)
	}
	if _, available := counts(t, s, e.ID); available != 1 {
		t.Fatalf("available = %d after cancelled claim, want 1", available)
	}
}

func testClaimCAS(t *testing.T, s Store) {
	e, tickets := newEvent(t, s, 1, false)
	a, b := newUser(t, s), newUser(t, s)
	ctx := context.Background()

	err := s.Update(ctx, func(tx Tx) error {
		return tx.ClaimTicket(ctx, tickets[0].ID, a.ID, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err = s.Update(ctx, func(tx Tx) error {
		return tx.ClaimTicket(ctx, tickets[0].ID, b.ID, time.Now().UTC())
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second claim error = %v, want ErrConflict", err)
	}

	err = s.View(ctx, func(tx Tx) error {
		tk, err := tx.GetTicket(ctx, tickets[0].ID)
		if err != nil {
			return err
		}
		if !tk.Claimed || tk.HolderID != a.ID || tk.ClaimedAt == nil {
			return fmt.Errorf("ticket = %+v, want claimed by %s", tk, a.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, available := counts(t, s, e.ID); available != 0 {
		t.Fatalf("available = %d, want 0", available)
	}
}

func testPoolExhausted(t *testing.T, s Store) {
	e, _ := newEvent(t, s, 2, false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := claim(ctx, s, e.ID, newUser(t, s).ID); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
	if _, err := claim(ctx, s, e.ID, newUser(t, s).ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("claim on empty pool = %v, want ErrNotFound", err)
	}

	empty, _ := newEvent(t, s, 0, false)
	if _, err := claim(ctx, s, empty.ID, newUser(t, s).ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("claim on zero-capacity event = %v, want ErrNotFound", err)
	}
}

func testActiveRegistrationUnique(t *testing.T, s Store) {
	e, _ := newEvent(t, s, 3, false)
	u := newUser(t, s)
	ctx := context.Background()

	first, err := claim(ctx, s, e.ID, u.ID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := claim(ctx, s, e.ID, u.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second claim error = %v, want ErrDuplicate", err)
	}
	if _, available := counts(t, s, e.ID); available != 2 {
		t.Fatalf("available = %d, duplicate must not consume a ticket", available)
	}

	err = s.View(ctx, func(tx Tx) error {
		got, err := tx.ActiveRegistration(ctx, e.ID, u.ID)
		if err != nil {
			return err
		}
		if got.ID != first.ID || got.TicketID != first.TicketID {
			return fmt.Errorf("active = %+v, want %+v", got, first)
		}
		byTicket, err := tx.RegistrationByTicket(ctx, first.TicketID)
		if err != nil {
			return err
		}
		if byTicket.ID != first.ID {
			return fmt.Errorf("by ticket = %s, want %s", byTicket.ID, first.ID)
		}
		if _, err := tx.ActiveRegistration(ctx, e.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("unknown user lookup = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testMarkAttendedCAS(t *testing.T, s Store) {
	e, _ := newEvent(t, s, 1, false)
	reg, err := claim(context.Background(), s, e.ID, newUser(t, s).ID)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	mark := func() error {
		return s.Update(ctx, func(tx Tx) error {
			return tx.MarkAttended(ctx, reg.ID, time.Now().UTC())
		})
	}

	if err := mark(); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := mark(); !errors.Is(err, ErrConflict) {
		t.Fatalf("second mark = %v, want ErrConflict", err)
	}

	err = s.View(ctx, func(tx Tx) error {
		got, err := tx.RegistrationByTicket(ctx, reg.TicketID)
		if err != nil {
			return err
		}
		if got.Status != model.RegistrationAttended || got.AttendedAt == nil {
			return fmt.Errorf("registration = %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testUserEmailUnique(t *testing.T, s Store) {
	u := newUser(t, s)
	ctx := context.Background()
	dup := &model.User{
		ID:        uuid.NewString(),
		Email:     strings.ToUpper(u.Email),
		FirstName: "Dup",
		Role:      model.RoleParticipant,
		CreatedAt: time.Now().UTC(),
	}

	err := s.Update(ctx, func(tx Tx) error { return tx.InsertUser(ctx, dup) })
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate email = %v, want ErrDuplicate", err)
	}

	err = s.View(ctx, func(tx Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if got.Email != u.Email {
			return fmt.Errorf("email = %q", got.Email)
		}
		_, err = tx.GetUser(ctx, dup.ID)
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("duplicate user stored: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testListPublicEvents(t *testing.T, s Store) {
	pub, _ := newEvent(t, s, 1, false)
	priv, _ := newEvent(t, s, 1, true)

	var events []model.Event
	err := s.View(context.Background(), func(tx Tx) error {
		var err error
		events, err = tx.ListPublicEvents(context.Background())
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	var sawPublic bool
	for _, e := range events {
		if e.ID == priv.ID {
			t.Errorf("private event %s listed", priv.ID)
		}
		if e.ID == pub.ID {
			sawPublic = true
		}
	}
	if !sawPublic {
		t.Errorf("public event %s missing", pub.ID)
	}
}

func testListRegistrations(t *testing.T, s Store) {
	e1, _ := newEvent(t, s, 2, false)
	e2, _ := newEvent(t, s, 2, false)
	u := newUser(t, s)
	other := newUser(t, s)
	ctx := context.Background()

	for _, step := range []struct{ event, user string }{
		{e1.ID, u.ID}, {e2.ID, u.ID}, {e1.ID, other.ID},
	} {
		if _, err := claim(ctx, s, step.event, step.user); err != nil {
			t.Fatal(err)
		}
	}

	err := s.View(ctx, func(tx Tx) error {
		byUser, err := tx.ListRegistrationsByUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(byUser) != 2 {
			return fmt.Errorf("user registrations = %d, want 2", len(byUser))
		}
		byEvent, err := tx.ListRegistrationsByEvent(ctx, e1.ID)
		if err != nil {
			return err
		}
		if len(byEvent) != 2 {
			return fmt.Errorf("event registrations = %d, want 2", len(byEvent))
		}
		none, err := tx.ListRegistrationsByUser(ctx, uuid.NewString())
		if err != nil {
			return err
		}
		if len(none) != 0 {
			return fmt.Errorf("unknown user has %d registrations", len(none))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testConcurrentClaims(t *testing.T, s Store) {
	const capacity, contenders = 5, 25
	e, _ := newEvent(t, s, capacity, false)
	users := make([]*model.User, contenders)
	for i := range users {
		users[i] = newUser(t, s)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     = map[string]string{} // ticket -> user
		full    int
		unknown []error
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			reg, err := claim(context.Background(), s, e.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if prev, ok := won[reg.TicketID]; ok {
					unknown = append(unknown, fmt.Errorf("ticket %s claimed by %s and %s", reg.TicketID, prev, userID))
				}
				won[reg.TicketID] = userID
			case errors.Is(err, ErrNotFound):
				full++
			default:
				unknown = append(unknown, err)
			}
		}(u.ID)
	}
	wg.Wait()

	for _, err := range unknown {
		t.Error(err)
	}
	if len(won) != capacity {
		t.Errorf("winners = %d, want %d", len(won), capacity)
	}
	if full != contenders-capacity {
		t.Errorf("full = %d, want %d", full, contenders-capacity)
	}
	if _, available := counts(t, s, e.ID); available != 0 {
		t.Errorf("available = %d, want 0", available)
	}
}
