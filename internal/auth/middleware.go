// middleware.go

// Request Gate: current-user resolution, CSRF enforcement and access guards.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MGallo-Code/places/internal/metrics"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/MGallo-Code/places/internal/store"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userKey contextKey = "user"

// CSRFField is the form field every POST must carry.
const CSRFField = "_csrf_token"

// CurrentUser returns the user LoadUser resolved for this request, or nil.
func CurrentUser(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey).(*store.User)
	return u
}

// WithUser returns ctx carrying u as the current user.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserLookup is the slice of UserStore the gate needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

// Gate holds the dependencies of the request-scoped middleware.
type Gate struct {
	Users   UserLookup
	Metrics *metrics.Metrics
	// Testing disables CSRF enforcement.
	Testing bool
}

// LoadUser resolves the session's user id into the request context.
// A stale id (user deleted) is dropped from the session; a lookup failure leaves
// the request anonymous.
func (g *Gate) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		id, ok := sess.UserID()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := g.Users.GetUserByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logWarn(r, "session references missing user, clearing", "user_id", id)
				sess.Clear()
			} else {
				logError(r, "loading current user failed", "user_id", id, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// CSRF rejects any POST whose _csrf_token does not match the session's token.
// The stored token is consumed either way, so each token is good for one POST.
func (g *Gate) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || g.Testing {
			next.ServeHTTP(w, r)
			return
		}

		sess := session.FromContext(r.Context())
		if !sess.ConsumeCSRFToken(r.PostFormValue(CSRFField)) {
			logWarn(r, "csrf check failed")
			g.Metrics.CSRFRejected()
			Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require runs next only if check passes; otherwise onFail handles the request.
func Require(check func(*http.Request) bool, onFail http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !check(r) {
				onFail.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggedIn reports whether LoadUser found a user for r.
func LoggedIn(r *http.Request) bool {
	return CurrentUser(r.Context()) != nil
}

// RequireLogin redirects anonymous requests to the login page.
var RequireLogin = Require(LoggedIn, http.RedirectHandler("/auth/login", http.StatusFound))
