// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware, and by other packages rendering pages
// inside the same session/user context.
package auth

import (
	"net/http"

	"github.com/MGallo-Code/places/internal/render"
	"github.com/MGallo-Code/places/internal/session"
)

// NewPage builds the common template data for r: current user, pending flashes
// (drained) and a CSRF token for any form on the page.
func NewPage(r *http.Request, title string, data any) (render.Page, error) {
	sess := session.FromContext(r.Context())
	csrf, err := sess.CSRFToken()
	if err != nil {
		return render.Page{}, err
	}
	return render.Page{
		Title:     title,
		User:      CurrentUser(r.Context()),
		Flashes:   sess.DrainFlashes(),
		CSRFToken: csrf,
		Data:      data,
	}, nil
}

// RenderPage renders page name for r, falling back to a 500 page on failure.
func RenderPage(rd *render.Renderer, w http.ResponseWriter, r *http.Request, name, title string, data any) {
	p, err := NewPage(r, title, data)
	if err != nil {
		InternalServerError(rd, w, r, err)
		return
	}
	if err := rd.HTML(w, http.StatusOK, name, p); err != nil {
		InternalServerError(rd, w, r, err)
	}
}

// InternalServerError logs the error and renders the generic 500 page.
// Never exposes internal error details.
func InternalServerError(rd *render.Renderer, w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	rd.Error(w, http.StatusInternalServerError)
}

// Forbidden aborts with a bare 403. The body says nothing about which check failed.
func Forbidden(w http.ResponseWriter) {
	w.WriteHeader(http.StatusForbidden)
}

// redirect sends a 302 to path.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusFound)
}
