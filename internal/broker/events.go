// Package broker publishes domain events after a registration or check-in
// commits, and runs the worker that turns them into holder notifications.
package broker

import "time"

// Topics.
const (
	TopicRegistrationConfirmed = "registration.confirmed"
	TopicTicketCheckedIn       = "ticket.checked_in"
)

// RegistrationConfirmed is published once a ticket has been claimed.
type RegistrationConfirmed struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	EventTitle     string    `json:"event_title"`
	EventDate      time.Time `json:"event_date"`
	UserID         string    `json:"user_id"`
	TicketID       string    `json:"ticket_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// TicketCheckedIn is published once a ticket has been admitted.
type TicketCheckedIn struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	TicketID       string    `json:"ticket_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
