package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/places/internal/auth"
	"github.com/MGallo-Code/places/internal/config"
	"github.com/MGallo-Code/places/internal/geocode"
	"github.com/MGallo-Code/places/internal/mail"
	"github.com/MGallo-Code/places/internal/metrics"
	"github.com/MGallo-Code/places/internal/places"
	"github.com/MGallo-Code/places/internal/render"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/MGallo-Code/places/internal/store"
	"github.com/MGallo-Code/places/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Local overrides; a missing file is fine, real deployments set env directly.
	for _, f := range []string{"config.env", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("loading env file failed", "file", f, "err", err)
		}
	}

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	if cfg.Testing {
		slog.Warn("TESTING is set: CSRF checks are disabled")
	}

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// newMailer picks SMTP when MAIL_SERVER is set, otherwise a NopMailer.
func newMailer(cfg *config.Config) mail.Mailer {
	if cfg.MailServer == "" {
		slog.Warn("MAIL_SERVER not set: password reset emails will not be sent")
		return mail.NopMailer{}
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.MailServer,
		Port:     cfg.MailPort,
		Username: cfg.MailUsername,
		Password: cfg.MailPassword,
		From:     cfg.MailDefaultSender,
	})
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
// A nil ml selects the mailer from cfg.
func run(ctx context.Context, cfg *config.Config, ready chan<- string, ml mail.Mailer) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	if ml == nil {
		ml = newMailer(cfg)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var gc places.Geocoder = geocode.Disabled{}
	if cfg.APIKey == "" {
		slog.Warn("API_KEY not set: geocoding and maps will not work")
	} else {
		g, err := geocode.NewGoogleGeocoder(cfg.APIKey, m)
		if err != nil {
			return err
		}
		gc = g
	}

	router, err := buildRouter(routerDeps{
		Config:   cfg,
		DB:       ps,
		Sessions: store.NewRedisStore(rdb),
		Mailer:   ml,
		Geocoder: gc,
		Metrics:  m,
		Registry: registry,
	})
	if err != nil {
		return err
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("places listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting conns, then waits for in-flight requests or the timeout.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// appStore is everything the handlers need from the durable store.
type appStore interface {
	auth.UserStore
	places.Store
	auth.HealthChecker
}

// sessionStore is the Redis side: session persistence, revocation and health.
type sessionStore interface {
	session.Store
	auth.SessionRevoker
	auth.HealthChecker
}

// routerDeps collects the dependencies buildRouter wires together.
type routerDeps struct {
	Config   *config.Config
	DB       appStore
	Sessions sessionStore
	Mailer   mail.Mailer
	Geocoder places.Geocoder
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests with in-memory stores.
func buildRouter(d routerDeps) (http.Handler, error) {
	rd, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	svc := &auth.Service{
		Users:    d.DB,
		Sessions: d.Sessions,
		Tokens:   token.NewSigner([]byte(d.Config.SecretKey), d.Config.ResetTokenTTL),
		Mailer:   d.Mailer,
		Metrics:  d.Metrics,
		BaseURL:  d.Config.BaseURL,
		ResetTTL: d.Config.ResetTokenTTL,
	}
	gate := &auth.Gate{Users: d.DB, Metrics: d.Metrics, Testing: d.Config.Testing}
	sessions := session.NewManager(d.Sessions, d.Config.SessionTTL, d.Config.CookieSecure)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// Sessionless endpoints
	r.Get("/health", auth.HealthHandler(d.DB, d.Sessions))
	r.Handle("/metrics", metrics.Handler(d.Registry))

	r.Group(func(r chi.Router) {
		// Order matters: LoadUser and CSRF read the session loaded by the manager.
		r.Use(sessions.Middleware)
		r.Use(gate.LoadUser)
		r.Use(gate.CSRF)

		r.Mount("/auth", (&auth.Handler{Service: svc, Render: rd}).Routes())
		(&places.Handler{Store: d.DB, Geocoder: d.Geocoder, Render: rd, APIKey: d.Config.APIKey}).Mount(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rd.Error(w, http.StatusNotFound)
	})

	return r, nil
}
