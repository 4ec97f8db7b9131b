// Package credential issues and verifies the signed bundle a ticket holder
// presents at the door. The bundle is an HS256 JWT carrying the ticket,
// event and holder identifiers.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "event-ticketing"

// ErrInvalid is returned for any credential that fails verification:
// bad signature, wrong algorithm, expired, or missing claims.
var ErrInvalid = errors.New("invalid ticket credential")

// Claims is the payload encoded into a ticket's scannable code.
// Subject is the holder's user ID.
type Claims struct {
	TicketID string `json:"tid"`
	EventID  string `json:"eid"`
	jwt.RegisteredClaims
}

// UserID returns the holder the credential was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

// Signer issues and verifies credentials with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer. A zero ttl issues credentials that do not
// expire; the ticket itself is single-use at check-in.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential signing secret is required but was empty")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// RandomSecret returns a hex-encoded 32-byte secret for development runs
// where none is configured. Credentials signed with it do not survive a
// restart.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue signs a credential for ticketID of eventID held by userID.
func (s *Signer) Issue(ticketID, eventID, userID string) (string, error) {
	now := s.now()
	claims := &Claims{
		TicketID: ticketID,
		EventID:  eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token and
// returns its claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TicketID == "" || claims.EventID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing ticket, event or holder", ErrInvalid)
	}
	return claims, nil
}
