package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner(testSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	token, err := s.Issue("tk-1", "ev-1", "u-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.TicketID != "tk-1" || claims.EventID != "ev-1" || claims.UserID() != "u-1" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("zero ttl should not set exp, got %v", claims.ExpiresAt)
	}
}

func TestVerify_Rejects(t *testing.T) {
	s, _ := NewSigner(testSecret, time.Hour)
	other, _ := NewSigner(strings.Repeat("x", 32), time.Hour)

	good, _ := s.Issue("tk-1", "ev-1", "u-1")
	foreign, _ := other.Issue("tk-1", "ev-1", "u-1")

	expiring, _ := NewSigner(testSecret, time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiring.Issue("tk-1", "ev-1", "u-1")

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		TicketID:         "tk-1",
		EventID:          "ev-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	missing, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		TicketID:         "tk-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u-1"},
	}).SignedString([]byte(testSecret))

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"garbage":         "not-a-token",
		"wrong secret":    foreign,
		"expired":         expired,
		"alg none":        noneAlg,
		"missing event":   missing,
		"tampered claims": tampered,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Verify(token); !errors.Is(err, ErrInvalid) {
				t.Errorf("Verify error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestVerify_ExpiredWrapsJWTError(t *testing.T) {
	s, _ := NewSigner(testSecret, time.Minute)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _ := s.Issue("tk", "ev", "u")
	s.now = time.Now

	_, err := s.Verify(token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("error = %v, want jwt.ErrTokenExpired in chain", err)
	}
}

func TestNewSigner_EmptySecret(t *testing.T) {
	if _, err := NewSigner("", 0); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := RandomSecret()
	if len(a) != 64 || a == b {
		t.Errorf("RandomSecret() = %q, %q", a, b)
	}
}
