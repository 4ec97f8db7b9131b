package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "no rows", in: pgx.ErrNoRows, want: ErrNotFound},
		{name: "unique violation", in: &pgconn.PgError{Code: "23505", ConstraintName: "registrations_active_key"}, want: ErrDuplicate},
		{name: "serialization failure", in: &pgconn.PgError{Code: "40001"}, want: ErrConflict},
		{name: "deadlock", in: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), want: ErrConflict},
		{name: "other", in: errors.New("connection reset"), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPgError("op", tt.in)
			if tt.want == nil {
				if errors.Is(got, ErrNotFound) || errors.Is(got, ErrDuplicate) || errors.Is(got, ErrConflict) {
					t.Fatalf("mapPgError(%v) = %v, want no sentinel", tt.in, got)
				}
				if !errors.Is(got, tt.in) {
					t.Fatalf("mapPgError should wrap the original error")
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapPgError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
