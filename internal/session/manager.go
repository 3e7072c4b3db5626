// manager.go -- Loads sessions from the cookie and commits them back.
//
// The cookie holds a 256-bit random token; Redis holds the session under
// base64url(sha256(token)), so a leaked Redis dump cannot be replayed as cookies.
// Commit happens right before the first byte of the response goes out, which is
// the last moment a Set-Cookie header can still be added.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MGallo-Code/places/internal/store"
)

// Store is the session persistence the Manager needs. Satisfied by *store.RedisStore.
type Store interface {
	GetSession(ctx context.Context, key string) (*store.SessionData, error)
	SetSession(ctx context.Context, key string, data store.SessionData, ttl time.Duration) error
	RefreshSession(ctx context.Context, key string, userID *int64, ttl time.Duration) error
	DeleteSession(ctx context.Context, key string) error
}

// Manager wires sessions into HTTP requests.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
}

// NewManager returns a Manager. ttl is the sliding idle lifetime of a session.
// secure selects the __Host- cookie (HTTPS only); disable it for plain-HTTP dev and tests.
func NewManager(st Store, ttl time.Duration, secure bool) *Manager {
	return &Manager{store: st, ttl: ttl, secure: secure}
}

// CookieName is __Host-session when secure, otherwise session.
// Browsers reject __Host- cookies without the Secure attribute.
func (m *Manager) CookieName() string {
	if m.secure {
		return "__Host-session"
	}
	return "session"
}

// Middleware loads the session for each request and commits it before the response is written.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		r = r.WithContext(NewContext(r.Context(), sess))

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() { m.commit(w, r, sess) }

		next.ServeHTTP(cw, r)

		// Handler wrote nothing (e.g. empty 200); still persist state.
		cw.commitOnce()
	})
}

// load resolves the cookie to a stored session. Unknown, expired or malformed
// tokens yield a fresh session; the client-supplied token is never adopted.
func (m *Manager) load(r *http.Request) *Session {
	c, err := r.Cookie(m.CookieName())
	if err != nil || c.Value == "" {
		return New()
	}
	key, ok := storageKey(c.Value)
	if !ok {
		slog.Warn("malformed session cookie", "path", r.URL.Path)
		return New()
	}

	data, err := m.store.GetSession(r.Context(), key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			slog.Error("loading session failed", "path", r.URL.Path, "error", err)
		}
		return New()
	}
	return &Session{data: *data, token: c.Value}
}

// commit persists sess and sets or clears the cookie. Runs at most once per request.
func (m *Manager) commit(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx := r.Context()

	if sess.token != "" && (sess.rotate || sess.empty()) {
		if key, ok := storageKey(sess.token); ok {
			if err := m.store.DeleteSession(ctx, key); err != nil {
				slog.Error("deleting old session failed", "path", r.URL.Path, "error", err)
			}
		}
	}

	if sess.empty() {
		if sess.token != "" {
			m.clearCookie(w)
		}
		return
	}

	// Existing, untouched session: slide its expiry forward.
	if !sess.dirty && !sess.rotate && sess.token != "" {
		key, _ := storageKey(sess.token)
		if err := m.store.RefreshSession(ctx, key, sess.data.UserID, m.ttl); err != nil {
			if !errors.Is(err, store.ErrCacheMiss) {
				slog.Error("refreshing session failed", "path", r.URL.Path, "error", err)
			}
			return
		}
		m.setCookie(w, sess.token)
		return
	}

	if sess.token == "" || sess.rotate {
		tok, err := generateToken()
		if err != nil {
			slog.Error("generating session token failed", "path", r.URL.Path, "error", err)
			return
		}
		sess.token = tok
	}
	key, _ := storageKey(sess.token)
	if err := m.store.SetSession(ctx, key, sess.data, m.ttl); err != nil {
		slog.Error("saving session failed", "path", r.URL.Path, "session_id", sess.ID(), "error", err)
		return
	}
	sess.dirty, sess.rotate = false, false
	m.setCookie(w, sess.token)
}

// setCookie writes the session cookie with HttpOnly and SameSite=Lax.
func (m *Manager) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// clearCookie overwrites the session cookie with MaxAge=-1 to trigger browser deletion.
func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// commitWriter runs commit before the first WriteHeader or Write reaches the client.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (cw *commitWriter) commitOnce() {
	if !cw.committed {
		cw.committed = true
		cw.commit()
	}
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.commitOnce()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.commitOnce()
	return cw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *commitWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
