package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// CreateEventRequest is the payload for creating a new event.
// Date accepts RFC 3339, "2006-01-02T15:04" and "2006-01-02".
// Field names are snake_case; camelCase keys are rejected as unknown fields.
type CreateEventRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Date        string `json:"date" validate:"required"`
	Location    string `json:"location" validate:"max=300"`
	OrganizerID string `json:"organizer_id" validate:"required,max=64"`
	Capacity    Int    `json:"capacity" validate:"required,gte=0"`
	Price       Float  `json:"price" validate:"gte=0"`
	IsPrivate   Bool   `json:"is_private"`
	Image       string `json:"image" validate:"omitempty,url,max=2048"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// CreateUserRequest is the payload for adding a user to the directory.
type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"omitempty,oneof=participant organizer staff"`
}

// ScanRequest carries the signed credential read from a ticket's QR code.
type ScanRequest struct {
	Credential string `json:"credential" validate:"required,max=4096"`
}

// Int is an integer that also accepts a quoted decimal string, since form
// based clients send every field as text. Valid is false when the key was
// absent, null or blank, so an explicit 0 can be told apart from a missing
// value.
type Int struct {
	Value int
	Valid bool
}

// NewInt returns a present Int holding n.
func NewInt(n int) Int {
	return Int{Value: n, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(data []byte) error {
	s, ok := unquote(data)
	if !ok {
		*i = Int{}
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", s)
	}
	*i = NewInt(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (i Int) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(i.Value)), nil
}

// Float is a number that also accepts a quoted decimal string.
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	s, ok := unquote(data)
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", s)
	}
	*f = Float(n)
	return nil
}

// Bool is a boolean that also accepts "true"/"false"/"1"/"0" strings.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bool) UnmarshalJSON(data []byte) error {
	s, ok := unquote(data)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("expected boolean, got %q", s)
	}
	*b = Bool(v)
	return nil
}

// unquote returns the scalar text of a JSON literal. ok is false for null
// and for an empty string.
func unquote(data []byte) (string, bool) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", false
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s, s != ""
}
