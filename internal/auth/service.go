// service.go -- Registration, login, logout and password reset.
//
// The service owns the auth state machine. Handlers translate HTTP forms into
// these calls and *UserError results into flash messages.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/MGallo-Code/places/internal/mail"
	"github.com/MGallo-Code/places/internal/metrics"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/MGallo-Code/places/internal/store"
	"github.com/MGallo-Code/places/internal/token"
)

// UserStore defines the user persistence the service needs.
// Satisfied by *store.PostgresStore.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	// CreateUser returns store.ErrConflict if the email is taken.
	CreateUser(ctx context.Context, email, passwordHash string) (int64, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
}

// SessionRevoker ends every stored session of a user. Satisfied by *store.RedisStore.
type SessionRevoker interface {
	DeleteAllUserSessions(ctx context.Context, userID int64) error
}

// TokenSigner issues and verifies purpose-scoped tokens. Satisfied by *token.Signer.
type TokenSigner interface {
	Issue(payload, purpose string) (string, error)
	Verify(raw, purpose string) (string, error)
}

// Service implements the auth flows.
type Service struct {
	Users    UserStore
	Sessions SessionRevoker // optional; nil skips revocation after a reset
	Tokens   TokenSigner
	Mailer   mail.Mailer
	Metrics  *metrics.Metrics // optional

	// BaseURL is prefixed to links in outgoing email, e.g. "https://places.example".
	BaseURL string
	// ResetTTL is only used to tell the user how long the emailed link lasts.
	ResetTTL time.Duration
}

// Register creates an account. It never logs the user in; the caller redirects to login.
func (s *Service) Register(ctx context.Context, sess *session.Session, email, password string) error {
	if email == "" {
		return userError(ErrValidation, "Email is required.")
	}
	if password == "" {
		return userError(ErrValidation, "Password is required.")
	}
	duplicate := userError(ErrDuplicateUser, fmt.Sprintf("User %s is already registered.", email))

	// Fast path for the common case; the UNIQUE constraint below is what actually decides.
	_, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		s.Metrics.AuthEvent("register", "duplicate")
		return duplicate
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.Users.CreateUser(ctx, email, hash); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.Metrics.AuthEvent("register", "duplicate")
			return duplicate
		}
		return err
	}

	sess.SetLastEmail(email)
	s.Metrics.AuthEvent("register", "success")
	return nil
}

// Login checks credentials and, on success, replaces the session with an
// authenticated one.
func (s *Service) Login(ctx context.Context, sess *session.Session, email, password string) (*store.User, error) {
	if email == "" {
		s.Metrics.AuthEvent("login", "unknown_email")
		return nil, userError(ErrAuth, "Incorrect email.")
	}
	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.AuthEvent("login", "unknown_email")
			return nil, userError(ErrAuth, "Incorrect email.")
		}
		return nil, fmt.Errorf("fetching user for login: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for user %d: %w", user.ID, err)
	}
	if !ok {
		s.Metrics.AuthEvent("login", "bad_password")
		return nil, userError(ErrAuth, "Incorrect password.")
	}

	if NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	sess.Clear()
	sess.SetUserID(user.ID)
	s.Metrics.AuthEvent("login", "success")
	return user, nil
}

// upgradeHash re-hashes password at the current cost. Failures are logged and
// leave the old hash in place.
func (s *Service) upgradeHash(ctx context.Context, user *store.User, password string) {
	hash, err := HashPassword(password)
	if err == nil {
		err = s.Users.UpdateUserPassword(ctx, user.ID, hash)
	}
	if err != nil {
		slog.Warn("password hash upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

// Logout drops all session state. Safe on an anonymous session.
func (s *Service) Logout(sess *session.Session) {
	sess.Clear()
	s.Metrics.AuthEvent("logout", "success")
}

// RequestPasswordReset emails a signed reset link to email if it belongs to an
// account. Unknown emails get the same nil result and no mail.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return userError(ErrValidation, "Email is required.")
	}

	if _, err := s.Users.GetUserByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("password reset requested for unknown email")
			s.Metrics.AuthEvent("reset_request", "unknown_email")
			return nil
		}
		return fmt.Errorf("fetching user for reset: %w", err)
	}

	tok, err := s.Tokens.Issue(email, token.PurposeResetPassword)
	if err != nil {
		return err
	}
	link := s.BaseURL + "/auth/new_password?token=" + url.QueryEscape(tok)

	body := "You requested a password reset.\n\n" +
		"Follow the link below to choose a new password:\n\n" +
		link + "\n\n" +
		"This link expires in " + mail.FormatDuration(s.ResetTTL) + ". " +
		"If you did not request a reset, ignore this email."

	if err := s.Mailer.Send(ctx, "Reset your password", []string{email}, body); err != nil {
		s.Metrics.AuthEvent("reset_request", "mail_error")
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}
	s.Metrics.AuthEvent("reset_request", "sent")
	return nil
}

// verifyResetToken maps every verification failure to the same user-facing error.
func (s *Service) verifyResetToken(raw string) (string, error) {
	email, err := s.Tokens.Verify(raw, token.PurposeResetPassword)
	if err != nil {
		return "", userError(ErrInvalidToken, invalidLinkMessage)
	}
	return email, nil
}

// BeginPasswordReset validates the emailed link and marks the session as
// resetting the password for the token's email.
func (s *Service) BeginPasswordReset(sess *session.Session, raw string) (string, error) {
	email, err := s.verifyResetToken(raw)
	if err != nil {
		s.Metrics.AuthEvent("reset_complete", "invalid_token")
		return "", err
	}
	sess.SetPendingResetEmail(email)
	return email, nil
}

// CompletePasswordReset re-verifies the token and sets the new password.
// A session that began a reset for a different email is refused.
func (s *Service) CompletePasswordReset(ctx context.Context, sess *session.Session, raw, newPassword string) error {
	email, err := s.verifyResetToken(raw)
	if err != nil {
		s.Metrics.AuthEvent("reset_complete", "invalid_token")
		return err
	}
	if pending := sess.PendingResetEmail(); pending != "" && pending != email {
		s.Metrics.AuthEvent("reset_complete", "session_mismatch")
		return userError(ErrInvalidToken, invalidLinkMessage)
	}
	if newPassword == "" {
		return userError(ErrValidation, "Password is required.")
	}

	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return userError(ErrNotFound, invalidLinkMessage)
		}
		return fmt.Errorf("fetching user for reset: %w", err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Users.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return userError(ErrNotFound, invalidLinkMessage)
		}
		return err
	}

	if s.Sessions != nil {
		if err := s.Sessions.DeleteAllUserSessions(ctx, user.ID); err != nil {
			slog.Warn("failed to revoke sessions after password reset", "user_id", user.ID, "error", err)
		}
	}

	sess.SetPendingResetEmail("")
	s.Metrics.AuthEvent("reset_complete", "success")
	return nil
}
