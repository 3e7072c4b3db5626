// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all env configuration vars for places.
type Config struct {
	DatabaseURL string
	RedisURL    string
	// SecretKey signs password reset tokens.
	SecretKey string
	Port      string
	// BaseURL prefixes links in outgoing email. Defaults to http://localhost:<Port>.
	BaseURL  string
	LogLevel slog.Level

	// APIKey is the Google Maps/Geocoding key. Empty disables geocoding lookups.
	APIKey string

	// Outbound mail. Empty MailServer means no email is sent (NopMailer).
	MailServer        string
	MailPort          int // defaults to 465 (implicit TLS)
	MailUsername      string
	MailPassword      string
	MailDefaultSender string

	// Defaults: 24h session, 1h reset link.
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration

	// CookieSecure marks the session cookie Secure and uses the __Host- prefix.
	// Default true; set COOKIE_SECURE=false for plain-HTTP local development.
	CookieSecure bool

	// Testing disables CSRF enforcement. Never enable in production.
	Testing bool
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, REDIS_URL, SECRET_KEY) are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	for _, req := range []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"REDIS_URL", &cfg.RedisURL},
		{"SECRET_KEY", &cfg.SecretKey},
	} {
		*req.dst = os.Getenv(req.key)
		if *req.dst == "" {
			return nil, fmt.Errorf("%s is required", req.key)
		}
	}

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "7865"
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("BASE_URL must start with http:// or https://")
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.APIKey = os.Getenv("API_KEY")

	cfg.MailServer = os.Getenv("MAIL_SERVER")
	cfg.MailPort = envInt("MAIL_PORT", 465)
	cfg.MailUsername = os.Getenv("MAIL_USERNAME")
	cfg.MailPassword = os.Getenv("MAIL_PASSWORD")
	cfg.MailDefaultSender = os.Getenv("MAIL_DEFAULT_SENDER")
	if cfg.MailServer != "" && cfg.MailDefaultSender == "" {
		return nil, fmt.Errorf("MAIL_DEFAULT_SENDER is required when MAIL_SERVER is set")
	}

	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)
	cfg.ResetTokenTTL = envDuration("RESET_TOKEN_TTL", time.Hour)

	cfg.CookieSecure = envBool("COOKIE_SECURE", true)
	cfg.Testing = envBool("TESTING", false)

	return cfg, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envBool reads an env var as bool, returning def if missing or unparseable.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
