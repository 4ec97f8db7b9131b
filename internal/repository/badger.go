package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

const driverBadger = "badger"

// Key layout. Records are JSON values under a type prefix; the remaining
// prefixes are index entries written in the same transaction as the record
// they point at.
const (
	prefixEvent        = "event:"     // event:{id} -> Event
	prefixTicket       = "ticket:"    // ticket:{id} -> Ticket
	prefixEventTicket  = "evticket:"  // evticket:{event}:{ticket} -> ""
	prefixUnclaimed    = "unclaimed:" // unclaimed:{event}:{ticket} -> ""
	prefixRegistration = "reg:"       // reg:{id} -> Registration
	prefixRegActive    = "regactive:" // regactive:{event}:{user} -> registration id
	prefixRegTicket    = "regticket:" // regticket:{ticket} -> registration id
	prefixUserReg      = "userreg:"   // userreg:{user}:{registration} -> ""
	prefixEventReg     = "evreg:"     // evreg:{event}:{registration} -> ""
	prefixUser         = "user:"      // user:{id} -> User
	prefixUserEmail    = "useremail:" // useremail:{lower(email)} -> user id
)

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, ""))
}

// BadgerStore implements Store on an embedded BadgerDB.
//
// Badger transactions are optimistic: every key read inside an update
// (including keys surfaced by an iterator) is checked at commit, and the
// commit fails with badger.ErrConflict if another transaction wrote one of
// them first. Two allocations that picked the same unclaimed ticket, or two
// scans of the same registration, therefore cannot both commit. The loser is
// re-run from scratch against fresh state.
type BadgerStore struct {
	db         *badger.DB
	maxRetries int
}

// NewBadgerStore wraps an open Badger database. maxRetries bounds how many
// times a conflicting update is re-run.
func NewBadgerStore(db *badger.DB, maxRetries int) *BadgerStore {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BadgerStore{db: db, maxRetries: maxRetries}
}

// Update runs fn in a read-write transaction, retrying on commit conflicts.
func (s *BadgerStore) Update(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreTx(driverBadger, "write", time.Since(start)) }()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		txn := s.db.NewTransaction(true)
		if err := fn(&badgerTx{txn: txn}); err != nil {
			txn.Discard()
			return err
		}
		// Abandoned before commit: drop every pending write.
		if err := ctx.Err(); err != nil {
			txn.Discard()
			return err
		}

		err := txn.Commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("commit transaction: %w", err)
		}

		metrics.RecordStoreRetry(driverBadger)
		logging.Ctx(ctx).Debug().Int("attempt", attempt).Msg("badger commit conflict, retrying")
	}
	return fmt.Errorf("commit transaction after %d attempts: %w", s.maxRetries, ErrConflict)
}

// View runs fn against a read-only snapshot.
func (s *BadgerStore) View(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreTx(driverBadger, "read", time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

// Ping reports whether the database is still open.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) getJSON(k []byte, v any) error {
	item, err := t.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (t *badgerTx) setJSON(k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(k, data)
}

func (t *badgerTx) getString(k []byte) (string, error) {
	item, err := t.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	return string(v), err
}

func (t *badgerTx) exists(k []byte) (bool, error) {
	_, err := t.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// keySuffixes returns the part after prefix of every key under prefix.
func (t *badgerTx) keySuffixes(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out
}

func (t *badgerTx) countPrefix(prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

func (t *badgerTx) InsertEvent(_ context.Context, e *model.Event) error {
	k := key(prefixEvent, e.ID)
	ok, err := t.exists(k)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if ok {
		return fmt.Errorf("insert event: %w", ErrDuplicate)
	}
	if err := t.setJSON(k, e); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *badgerTx) InsertTickets(_ context.Context, tickets []model.Ticket) error {
	for i := range tickets {
		tk := &tickets[i]
		k := key(prefixTicket, tk.ID)
		ok, err := t.exists(k)
		if err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if ok {
			return fmt.Errorf("insert tickets: %w", ErrDuplicate)
		}
		if err := t.setJSON(k, tk); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if err := t.txn.Set(key(prefixEventTicket, tk.EventID, ":", tk.ID), nil); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if !tk.Claimed {
			if err := t.txn.Set(key(prefixUnclaimed, tk.EventID, ":", tk.ID), nil); err != nil {
				return fmt.Errorf("insert tickets: %w", err)
			}
		}
	}
	return nil
}

func (t *badgerTx) GetEvent(_ context.Context, id string) (*model.Event, error) {
	var e model.Event
	if err := t.getJSON(key(prefixEvent, id), &e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// LockEvent reads the event. Badger has no row locks; contention on the
// pool is detected at commit through the ticket and index keys instead.
func (t *badgerTx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	return t.GetEvent(ctx, id)
}

func (t *badgerTx) ListPublicEvents(_ context.Context) ([]model.Event, error) {
	prefix := []byte(prefixEvent)
	it := t.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	events := []model.Event{}
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var e model.Event
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if !e.IsPrivate {
			events = append(events, e)
		}
	}
	slices.SortFunc(events, func(a, b model.Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return events, nil
}

func (t *badgerTx) CountTickets(_ context.Context, eventID string) (total, available int, err error) {
	total = t.countPrefix(key(prefixEventTicket, eventID, ":"))
	available = t.countPrefix(key(prefixUnclaimed, eventID, ":"))
	return total, available, nil
}

// NextUnclaimedTicket starts at a random point in the event's unclaimed
// index and wraps around, so concurrent allocators rarely pick the same
// ticket and collide at commit.
func (t *badgerTx) NextUnclaimedTicket(ctx context.Context, eventID string) (*model.Ticket, error) {
	prefix := key(prefixUnclaimed, eventID, ":")
	start := append(slices.Clone(prefix), uuid.NewString()...)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)

	var ticketID string
	it.Seek(start)
	if !it.ValidForPrefix(prefix) {
		it.Seek(prefix)
	}
	if it.ValidForPrefix(prefix) {
		// Item registers the key in the read set.
		ticketID = string(it.Item().Key()[len(prefix):])
	}
	it.Close()

	if ticketID == "" {
		return nil, ErrNotFound
	}
	return t.GetTicket(ctx, ticketID)
}

func (t *badgerTx) ClaimTicket(ctx context.Context, ticketID, userID string, at time.Time) error {
	tk, err := t.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if tk.Claimed {
		return ErrConflict
	}
	tk.Claim(userID, at)
	if err := t.setJSON(key(prefixTicket, tk.ID), tk); err != nil {
		return fmt.Errorf("claim ticket: %w", err)
	}
	if err := t.txn.Delete(key(prefixUnclaimed, tk.EventID, ":", tk.ID)); err != nil {
		return fmt.Errorf("claim ticket: %w", err)
	}
	return nil
}

func (t *badgerTx) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	var tk model.Ticket
	if err := t.getJSON(key(prefixTicket, id), &tk); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &tk, nil
}

func (t *badgerTx) InsertRegistration(_ context.Context, r *model.Registration) error {
	activeKey := key(prefixRegActive, r.EventID, ":", r.UserID)
	ticketKey := key(prefixRegTicket, r.TicketID)

	if r.Active() {
		ok, err := t.exists(activeKey)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		if ok {
			return fmt.Errorf("insert registration: %w (event, user)", ErrDuplicate)
		}
	}
	ok, err := t.exists(ticketKey)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if ok {
		return fmt.Errorf("insert registration: %w (ticket)", ErrDuplicate)
	}

	if err := t.setJSON(key(prefixRegistration, r.ID), r); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	index := [][2][]byte{
		{ticketKey, []byte(r.ID)},
		{key(prefixUserReg, r.UserID, ":", r.ID), nil},
		{key(prefixEventReg, r.EventID, ":", r.ID), nil},
	}
	if r.Active() {
		index = append(index, [2][]byte{activeKey, []byte(r.ID)})
	}
	for _, kv := range index {
		if err := t.txn.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
	}
	return nil
}

func (t *badgerTx) getRegistration(id string) (*model.Registration, error) {
	var r model.Registration
	if err := t.getJSON(key(prefixRegistration, id), &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &r, nil
}

func (t *badgerTx) ActiveRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	id, err := t.getString(key(prefixRegActive, eventID, ":", userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return t.getRegistration(id)
}

func (t *badgerTx) RegistrationByTicket(_ context.Context, ticketID string) (*model.Registration, error) {
	id, err := t.getString(key(prefixRegTicket, ticketID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration by ticket: %w", err)
	}
	return t.getRegistration(id)
}

func (t *badgerTx) MarkAttended(_ context.Context, registrationID string, at time.Time) error {
	r, err := t.getRegistration(registrationID)
	if err != nil {
		return err
	}
	if r.Status != model.RegistrationConfirmed {
		return ErrConflict
	}
	r.Status = model.RegistrationAttended
	r.AttendedAt = &at
	if err := t.setJSON(key(prefixRegistration, r.ID), r); err != nil {
		return fmt.Errorf("mark attended: %w", err)
	}
	return nil
}

func (t *badgerTx) listRegistrations(prefix []byte) ([]model.Registration, error) {
	ids := t.keySuffixes(prefix)
	regs := make([]model.Registration, 0, len(ids))
	for _, id := range ids {
		r, err := t.getRegistration(id)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *r)
	}
	slices.SortFunc(regs, func(a, b model.Registration) int {
		return a.RegisteredAt.Compare(b.RegisteredAt)
	})
	return regs, nil
}

func (t *badgerTx) ListRegistrationsByUser(_ context.Context, userID string) ([]model.Registration, error) {
	return t.listRegistrations(key(prefixUserReg, userID, ":"))
}

func (t *badgerTx) ListRegistrationsByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	return t.listRegistrations(key(prefixEventReg, eventID, ":"))
}

func (t *badgerTx) InsertUser(_ context.Context, u *model.User) error {
	emailKey := key(prefixUserEmail, strings.ToLower(u.Email))
	taken, err := t.exists(emailKey)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if taken {
		return fmt.Errorf("insert user: %w (email)", ErrDuplicate)
	}
	if err := t.setJSON(key(prefixUser, u.ID), u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if err := t.txn.Set(emailKey, []byte(u.ID)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (t *badgerTx) GetUser(_ context.Context, id string) (*model.User, error) {
	var u model.User
	if err := t.getJSON(key(prefixUser, id), &u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
