// token.go -- Session and CSRF token generation.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// tokenLen is 256 bits of entropy.
const tokenLen = 32

// generateToken returns a base64url-encoded 256-bit random token.
func generateToken() (string, error) {
	var b [tokenLen]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating token with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// storageKey maps a raw cookie token to its Redis key: base64url(sha256(token)).
// Returns false if the cookie value is not a well-formed token.
func storageKey(token string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenLen {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(sum[:]), true
}
