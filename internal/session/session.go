// Package session provides server-side browser sessions stored in Redis.
//
// session.go -- Per-request session state and its accessors.
// A Session is owned by one request goroutine and is not safe for concurrent use.
package session

import (
	"context"
	"crypto/subtle"

	"github.com/MGallo-Code/places/internal/store"
	"github.com/gofrs/uuid/v5"
)

type contextKey struct{}

// Session is the mutable view of one browser session for the duration of a request.
// Mutations mark it dirty; Manager.Middleware persists dirty sessions on commit.
type Session struct {
	data   store.SessionData
	token  string // raw cookie token, empty until the session is first saved
	dirty  bool
	rotate bool
}

// New returns an empty anonymous session that has never been stored.
func New() *Session {
	return &Session{data: store.SessionData{ID: newSessionID()}}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if crypto/rand does
		return ""
	}
	return id.String()
}

// FromContext returns the request's session. Outside Manager.Middleware it returns
// a fresh session that is never persisted, so callers never need a nil check.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(contextKey{}).(*Session); ok {
		return s
	}
	return New()
}

// NewContext returns ctx carrying s. Used by the middleware and by tests.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// ID is a stable identifier for logging. It changes whenever the session is cleared.
func (s *Session) ID() string { return s.data.ID }

// UserID returns the authenticated user id, if any.
func (s *Session) UserID() (int64, bool) {
	if s.data.UserID == nil {
		return 0, false
	}
	return *s.data.UserID, true
}

func (s *Session) SetUserID(id int64) {
	s.data.UserID = &id
	s.dirty = true
}

// Clear drops all session state. The cookie token is replaced on commit so a
// token known before the call (e.g. planted by an attacker) stops working.
func (s *Session) Clear() {
	s.data = store.SessionData{ID: newSessionID()}
	s.dirty = true
	s.rotate = true
}

// PushFlash queues a one-time message for the next rendered page.
func (s *Session) PushFlash(msg string) {
	s.data.Flashes = append(s.data.Flashes, msg)
	s.dirty = true
}

// DrainFlashes returns queued messages in order and empties the queue.
func (s *Session) DrainFlashes() []string {
	msgs := s.data.Flashes
	if len(msgs) > 0 {
		s.data.Flashes = nil
		s.dirty = true
	}
	return msgs
}

// CSRFToken returns the session's CSRF token, creating one if none is stored.
func (s *Session) CSRFToken() (string, error) {
	if s.data.CSRFToken == "" {
		tok, err := generateToken()
		if err != nil {
			return "", err
		}
		s.data.CSRFToken = tok
		s.dirty = true
	}
	return s.data.CSRFToken, nil
}

// ConsumeCSRFToken removes the stored CSRF token and reports whether submitted
// matched it. Whatever the outcome, the stored token is gone afterwards.
func (s *Session) ConsumeCSRFToken(submitted string) bool {
	stored := s.data.CSRFToken
	if stored != "" {
		s.data.CSRFToken = ""
		s.dirty = true
	}
	if stored == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

func (s *Session) PendingResetEmail() string { return s.data.PendingResetEmail }

func (s *Session) SetPendingResetEmail(email string) {
	s.data.PendingResetEmail = email
	s.dirty = true
}

// LastEmail is a convenience hint used to prefill the login form after registration.
func (s *Session) LastEmail() string { return s.data.LastEmail }

func (s *Session) SetLastEmail(email string) {
	s.data.LastEmail = email
	s.dirty = true
}

// empty reports whether there is nothing worth persisting.
func (s *Session) empty() bool {
	d := s.data
	return d.UserID == nil && d.PendingResetEmail == "" && d.LastEmail == "" &&
		d.CSRFToken == "" && len(d.Flashes) == 0
}
