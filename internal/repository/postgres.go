package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

const driverPostgres = "postgres"

// PostgreSQL error codes the store translates into sentinels.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresStore implements Store on a pgx connection pool.
//
// Concurrency comes from the database: LockEvent takes SELECT ... FOR UPDATE
// on the event row, so every allocation for one event runs one at a time
// while allocations for different events proceed in parallel. The partial
// unique index on registrations(event_id, user_id) and the unique
// registrations(ticket_id) column backstop the same invariants.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Update runs fn inside a single read-committed transaction.
func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreTx(driverPostgres, "write", time.Since(start)) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved, even if ctx is already done.
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapPgError("commit transaction", err)
	}
	return nil
}

// View runs fn in a read-only repeatable-read transaction so every read
// sees the same snapshot.
func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreTx(driverPostgres, "read", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	return fn(&pgTx{tx: tx})
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// mapPgError wraps err, translating uniqueness and serialization failures
// into ErrDuplicate and ErrConflict.
func mapPgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type pgTx struct {
	tx pgx.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

const eventColumns = `id, title, description, date, location, organizer_id, capacity, price, is_private, image, created_at`

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.OrganizerID,
		&e.Capacity, &e.Price, &e.IsPrivate, &e.Image, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *pgTx) InsertEvent(ctx context.Context, e *model.Event) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.OrganizerID,
		e.Capacity, e.Price, e.IsPrivate, e.Image, e.CreatedAt,
	)
	if err != nil {
		return mapPgError("insert event", err)
	}
	return nil
}

// InsertTickets bulk-loads the pool with COPY inside the open transaction.
func (t *pgTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	n, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"tickets"},
		[]string{"id", "event_id", "claimed", "created_at"},
		pgx.CopyFromSlice(len(tickets), func(i int) ([]any, error) {
			tk := tickets[i]
			return []any{tk.ID, tk.EventID, tk.Claimed, tk.CreatedAt}, nil
		}),
	)
	if err != nil {
		return mapPgError("insert tickets", err)
	}
	if int(n) != len(tickets) {
		return fmt.Errorf("insert tickets: copied %d of %d rows", n, len(tickets))
	}
	return nil
}

func (t *pgTx) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get event", err)
	}
	return e, nil
}

// LockEvent acquires an exclusive row-level lock on the event. Any other
// transaction locking the same row blocks until this one commits or rolls
// back, which serializes the read-check-write of its ticket pool.
func (t *pgTx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapPgError("lock event row", err)
	}
	return e, nil
}

func (t *pgTx) ListPublicEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE NOT is_private
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (t *pgTx) CountTickets(ctx context.Context, eventID string) (total, available int, err error) {
	err = t.tx.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT claimed)
		 FROM tickets WHERE event_id = $1`,
		eventID,
	).Scan(&total, &available)
	if err != nil {
		return 0, 0, fmt.Errorf("count tickets: %w", err)
	}
	return total, available, nil
}

const ticketColumns = `id, event_id, claimed, holder_id, claimed_at, created_at`

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var (
		tk     model.Ticket
		holder *string
	)
	if err := row.Scan(&tk.ID, &tk.EventID, &tk.Claimed, &holder, &tk.ClaimedAt, &tk.CreatedAt); err != nil {
		return nil, err
	}
	if holder != nil {
		tk.HolderID = *holder
	}
	return &tk, nil
}

// NextUnclaimedTicket locks one free ticket. SKIP LOCKED lets a caller that
// did not take the event lock move past tickets another transaction holds.
func (t *pgTx) NextUnclaimedTicket(ctx context.Context, eventID string) (*model.Ticket, error) {
	tk, err := scanTicket(t.tx.QueryRow(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE event_id = $1 AND NOT claimed
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		eventID,
	))
	if err != nil {
		return nil, mapPgError("select unclaimed ticket", err)
	}
	return tk, nil
}

func (t *pgTx) ClaimTicket(ctx context.Context, ticketID, userID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tickets
		 SET claimed = TRUE, holder_id = $2, claimed_at = $3
		 WHERE id = $1 AND NOT claimed`,
		ticketID, userID, at,
	)
	if err != nil {
		return mapPgError("claim ticket", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	tk, err := scanTicket(t.tx.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get ticket", err)
	}
	return tk, nil
}

const registrationColumns = `id, event_id, user_id, ticket_id, status, registered_at, attended_at`

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var (
		r      model.Registration
		status string
	)
	if err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.TicketID, &status, &r.RegisteredAt, &r.AttendedAt); err != nil {
		return nil, err
	}
	r.Status = model.RegistrationStatus(status)
	return &r, nil
}

func (t *pgTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.EventID, r.UserID, r.TicketID, string(r.Status), r.RegisteredAt, r.AttendedAt,
	)
	if err != nil {
		return mapPgError("insert registration", err)
	}
	return nil
}

func (t *pgTx) ActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	r, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'`,
		eventID, userID,
	))
	if err != nil {
		return nil, mapPgError("get active registration", err)
	}
	return r, nil
}

func (t *pgTx) RegistrationByTicket(ctx context.Context, ticketID string) (*model.Registration, error) {
	r, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE ticket_id = $1`, ticketID))
	if err != nil {
		return nil, mapPgError("get registration by ticket", err)
	}
	return r, nil
}

// MarkAttended is a compare-and-swap on status: of two concurrent scans the
// second blocks on the row lock, then matches zero rows.
func (t *pgTx) MarkAttended(ctx context.Context, registrationID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations
		 SET status = 'attended', attended_at = $2
		 WHERE id = $1 AND status = 'confirmed'`,
		registrationID, at,
	)
	if err != nil {
		return mapPgError("mark attended", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) listRegistrations(ctx context.Context, op, where string, arg string) ([]model.Registration, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE `+where+` = $1
		 ORDER BY registered_at ASC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

func (t *pgTx) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return t.listRegistrations(ctx, "list user registrations", "user_id", userID)
}

func (t *pgTx) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return t.listRegistrations(ctx, "list event registrations", "event_id", eventID)
}

func (t *pgTx) InsertUser(ctx context.Context, u *model.User) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (id, email, first_name, last_name, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.CreatedAt,
	)
	if err != nil {
		return mapPgError("insert user", err)
	}
	return nil
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, role, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, mapPgError("get user", err)
	}
	return &u, nil
}
