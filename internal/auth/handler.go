// handler.go -- HTTP handlers for all /auth/* endpoints.
//
// Form posts go to the Service; *UserError results are flashed and the form is
// re-rendered with 200. Anything else is logged and rendered as a 500 page.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/places/internal/render"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for the /auth/* handlers.
type Handler struct {
	Service *Service
	Render  *render.Renderer
}

// Routes returns the router mounted at /auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Get("/reset_password", h.ResetPasswordForm)
	r.Post("/reset_password", h.ResetPassword)
	r.Get("/new_password", h.NewPasswordForm)
	r.Post("/new_password", h.NewPassword)
	return r
}

// userFailure flashes a *UserError and reports true; any other error is left to the caller.
func userFailure(r *http.Request, err error) bool {
	var ue *UserError
	if !errors.As(err, &ue) {
		return false
	}
	session.FromContext(r.Context()).PushFlash(ue.Message)
	return true
}

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	RenderPage(h.Render, w, r, "register.html", "Register", nil)
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	email := r.PostFormValue("email")

	err := h.Service.Register(r.Context(), sess, email, r.PostFormValue("password"))
	if err != nil {
		if userFailure(r, err) {
			logInfo(r, "registration rejected", "reason", err.Error())
			h.RegisterForm(w, r)
			return
		}
		InternalServerError(h.Render, w, r, err)
		return
	}

	logInfo(r, "user registered")
	sess.PushFlash("Account creation successful!")
	redirect(w, r, "/auth/login")
}

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	if email == "" {
		email = session.FromContext(r.Context()).LastEmail()
	}
	RenderPage(h.Render, w, r, "login.html", "Log In", email)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	user, err := h.Service.Login(r.Context(), sess, r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		if userFailure(r, err) {
			logInfo(r, "login rejected", "reason", err.Error())
			h.LoginForm(w, r)
			return
		}
		InternalServerError(h.Render, w, r, err)
		return
	}

	logInfo(r, "user logged in", "user_id", user.ID)
	redirect(w, r, "/")
}

// Logout handles GET /auth/logout. Idempotent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if u := CurrentUser(r.Context()); u != nil {
		logInfo(r, "user logged out", "user_id", u.ID)
	}
	h.Service.Logout(session.FromContext(r.Context()))
	redirect(w, r, "/")
}

func (h *Handler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	RenderPage(h.Render, w, r, "reset_password.html", "Reset Password", nil)
}

// ResetPassword handles POST /auth/reset_password. The response is the same
// whether or not the email belongs to an account.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	err := h.Service.RequestPasswordReset(r.Context(), r.PostFormValue("email"))
	switch {
	case err == nil:
		sess.PushFlash("If that email is registered, a password reset link is on its way.")
		redirect(w, r, "/auth/login")
	case errors.Is(err, ErrMailDelivery):
		logError(r, "password reset email failed", "error", err)
		sess.PushFlash("Sorry, we could not send the reset email. Please try again later.")
		h.ResetPasswordForm(w, r)
	case userFailure(r, err):
		h.ResetPasswordForm(w, r)
	default:
		InternalServerError(h.Render, w, r, err)
	}
}

// NewPasswordForm handles GET /auth/new_password?token=...
func (h *Handler) NewPasswordForm(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	sess := session.FromContext(r.Context())

	if _, err := h.Service.BeginPasswordReset(sess, tok); err != nil {
		if userFailure(r, err) {
			logWarn(r, "reset link rejected")
			redirect(w, r, "/auth/reset_password")
			return
		}
		InternalServerError(h.Render, w, r, err)
		return
	}
	RenderPage(h.Render, w, r, "new_password.html", "New Password", tok)
}

// NewPassword handles POST /auth/new_password?token=...
// The token may also arrive as a form field; the body wins over the query string.
func (h *Handler) NewPassword(w http.ResponseWriter, r *http.Request) {
	tok := r.FormValue("token")
	sess := session.FromContext(r.Context())

	err := h.Service.CompletePasswordReset(r.Context(), sess, tok, r.PostFormValue("password"))
	if err != nil {
		if !userFailure(r, err) {
			InternalServerError(h.Render, w, r, err)
			return
		}
		if errors.Is(err, ErrValidation) {
			RenderPage(h.Render, w, r, "new_password.html", "New Password", tok)
			return
		}
		logWarn(r, "password reset rejected", "reason", err.Error())
		redirect(w, r, "/auth/reset_password")
		return
	}

	logInfo(r, "password reset completed")
	sess.PushFlash("Your password has been reset. Please log in.")
	redirect(w, r, "/auth/login")
}
