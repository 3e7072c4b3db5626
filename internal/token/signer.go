// Package token issues and verifies signed, purpose-scoped, expiring tokens.
//
// signer.go -- HS256 JWTs keyed by the app's SECRET_KEY.
// A token carries a payload (sub), a purpose claim, and iat/exp. A token issued for
// one purpose never verifies for another, and nothing is trusted until the
// signature checks out.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeResetPassword scopes tokens emailed by the password reset flow.
const PurposeResetPassword = "reset-password"

// ErrInvalidToken covers every verification failure: bad signature, malformed,
// expired, wrong purpose, or empty payload. Callers never learn which.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// Signer issues and verifies tokens with a single secret and lifetime.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer. ttl is how long issued tokens stay valid.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs payload for purpose. The result is URL-safe.
func (s *Signer) Issue(payload, purpose string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("issuing token: empty payload")
	}
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Purpose: purpose,
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and purpose of raw and returns its payload.
func (s *Signer) Verify(raw, purpose string) (string, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	if c.Purpose != purpose || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
