// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (session storage).
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup or update matches no row.
// Callers use errors.Is rather than inspecting pgx.ErrNoRows directly.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by CreateUser when the email is already taken.
// The UNIQUE constraint on users.email is the source of truth, not any pre-check.
var ErrConflict = errors.New("conflict")

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// User represents a row in the users table.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionData is the JSON shape stored in Redis for a browser session.
// Empty fields mean "unset"; a nil UserID means the session is anonymous.
type SessionData struct {
	ID                string   `json:"id"`
	UserID            *int64   `json:"user_id,omitempty"`
	PendingResetEmail string   `json:"pending_reset_email,omitempty"`
	LastEmail         string   `json:"last_email,omitempty"`
	CSRFToken         string   `json:"csrf_token,omitempty"`
	Flashes           []string `json:"flashes,omitempty"`
}

// Location represents a row in the locations table.
// AuthorEmail and AverageRating are filled by read queries that join or aggregate.
type Location struct {
	ID            int64
	UserID        int64
	Name          string
	Description   string
	Postcode      string
	Lat           float64
	Lng           float64
	CreatedAt     time.Time
	AuthorEmail   string
	AverageRating *float64 // nil when the location has no reviews
}

// Review represents a row in the reviews table, joined with the author's email.
type Review struct {
	ID          int64
	UserID      int64
	LocationID  int64
	Rating      int
	Text        string
	AuthorEmail string
	CreatedAt   time.Time
}
