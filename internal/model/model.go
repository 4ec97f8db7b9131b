// Package model defines the core domain types for the event ticketing system.
package model

import "time"

// RegistrationStatus is the lifecycle state of a Registration.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationAttended  RegistrationStatus = "attended"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// User roles.
const (
	RoleParticipant = "participant"
	RoleOrganizer   = "organizer"
	RoleStaff       = "staff"
)

// Event represents a ticketed event created by an organizer.
// Capacity is fixed at creation; the ticket pool is generated from it.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	OrganizerID string    `json:"organizer_id"`
	Capacity    int       `json:"capacity"`
	Price       float64   `json:"price"`
	IsPrivate   bool      `json:"is_private"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the denormalized view shown next to registrations.
func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:       e.ID,
		Title:    e.Title,
		Date:     e.Date,
		Location: e.Location,
	}
}

// EventSummary is the subset of event fields shown on a ticket.
type EventSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Location string    `json:"location"`
}

// Ticket is one unit of an event's pool. Its ID is the credential presented
// at the door, so it must never be derivable from the event ID.
type Ticket struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Claimed   bool       `json:"claimed"`
	HolderID  string     `json:"holder_id,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Claim binds the ticket to a user. Callers must have checked Claimed first;
// a claimed ticket never reverts.
func (t *Ticket) Claim(userID string, at time.Time) {
	t.Claimed = true
	t.HolderID = userID
	t.ClaimedAt = &at
}

// Registration represents a user's confirmed place at an event.
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	UserID       string             `json:"user_id"`
	TicketID     string             `json:"ticket_id"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	AttendedAt   *time.Time         `json:"attended_at,omitempty"`
}

// Active reports whether the registration still holds its ticket.
func (r *Registration) Active() bool {
	return r.Status != RegistrationCancelled
}

// User is an entry in the user directory.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
