package service

import (
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/validation"
)

// Sentinels for errors.Is. The concrete error types below carry the detail.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrEventFull         = errors.New("event is fully booked")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidCredential = errors.New("invalid ticket credential")
	ErrStorage           = errors.New("storage failure")
)

// Entity kinds reported by NotFoundError.
const (
	KindEvent = "event"
	KindUser  = "user"
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyRegisteredError is returned when the user already holds an active
// registration for the event. It carries the existing ticket so the client
// can recover it without claiming another.
type AlreadyRegisteredError struct {
	RegistrationID string
	Ticket         model.TicketCredential
}

func (e *AlreadyRegisteredError) Error() string {
	return ErrAlreadyRegistered.Error()
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

// InvalidInputError reports a rejected request field. Fields lists every
// failure when the payload was checked by the validator.
type InvalidInputError struct {
	Field  string
	Reason string
	Fields validation.Errors
}

func (e *InvalidInputError) Error() string {
	if len(e.Fields) > 0 {
		return e.Fields.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// fromValidation converts validator output into an InvalidInputError.
func fromValidation(err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &InvalidInputError{Field: verrs[0].Field, Reason: verrs[0].Message, Fields: verrs}
	}
	return &InvalidInputError{Field: "body", Reason: err.Error()}
}

// StorageError wraps a durable store failure. Nothing from the failed
// operation was persisted, so the caller may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
