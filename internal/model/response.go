package model

import "time"

// Check-in rejection reasons.
const (
	ReasonUnknownTicket      = "unknownTicket"
	ReasonNotAssigned        = "notAssigned"
	ReasonAlreadyScanned     = "alreadyScanned"
	ReasonCredentialMismatch = "credentialMismatch"
)

// CreateEventResponse is returned after an event and its pool are persisted.
type CreateEventResponse struct {
	Event            Event `json:"event"`
	TicketsGenerated int   `json:"tickets_generated"`
}

// EventDetail is an event together with live pool availability.
type EventDetail struct {
	Event
	AvailableTickets int `json:"available_tickets"`
	TotalTickets     int `json:"total_tickets"`
}

// TicketCredential is what a client renders into a scannable code.
type TicketCredential struct {
	TicketID string `json:"ticket_id"`
	Token    string `json:"token"`
}

// RegistrationResult is the successful outcome of RegisterForEvent.
type RegistrationResult struct {
	Registration Registration     `json:"registration"`
	Event        EventSummary     `json:"event"`
	Ticket       TicketCredential `json:"ticket"`
}

// RegistrationView is a registration joined with its event summary.
type RegistrationView struct {
	Registration
	Event EventSummary `json:"event"`
}

// ValidationResult is the outcome of a ticket scan.
type ValidationResult struct {
	Valid          bool       `json:"valid"`
	Reason         string     `json:"reason,omitempty"`
	TicketID       string     `json:"ticket_id"`
	EventID        string     `json:"event_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	RegistrationID string     `json:"registration_id,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
