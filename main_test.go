// main_test.go
//
// Level 3 smoke tests
// chi wiring via httptest.NewServer with in-memory mock stores and miniredis.
// Catches middleware ordering, route grouping, and real HTTP cookie/header behavior
// that httptest.NewRecorder cannot exercise.

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/places/internal/config"
	"github.com/MGallo-Code/places/internal/geocode"
	"github.com/MGallo-Code/places/internal/metrics"
	"github.com/MGallo-Code/places/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type smokeApp struct {
	srv    *httptest.Server
	client *http.Client
	db     *testutil.MockStore
	redis  *miniredis.Miniredis
	mailer *testutil.MockMailer
}

// newSmokeApp serves buildRouter with CSRF enforced and plain-HTTP cookies.
func newSmokeApp(t *testing.T, mutate func(*config.Config)) *smokeApp {
	t.Helper()
	cfg := &config.Config{
		SecretKey:     "smoke-secret",
		BaseURL:       "http://places.test",
		APIKey:        "maps-key",
		SessionTTL:    time.Hour,
		ResetTokenTTL: time.Hour,
	}
	if mutate != nil {
		mutate(cfg)
	}

	rs, mr := testutil.NewRedisStore(t)
	db := testutil.NewMockStore()
	ml := &testutil.MockMailer{}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	h, err := buildRouter(routerDeps{
		Config:   cfg,
		DB:       db,
		Sessions: rs,
		Mailer:   ml,
		Geocoder: &testutil.MockGeocoder{Known: map[string]geocode.Coordinates{
			"SW1A 1AA": {Lat: 51.501, Lng: -0.1416},
		}},
		Metrics:  m,
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &smokeApp{srv: srv, client: client, db: db, redis: mr, mailer: ml}
}

func (a *smokeApp) do(t *testing.T, method, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

var csrfInput = regexp.MustCompile(`name="_csrf_token" value="([^"]+)"`)

// submit GETs page, copies its CSRF token into form and POSTs it to action.
func (a *smokeApp) submit(t *testing.T, page, action string, form url.Values) (*http.Response, string) {
	t.Helper()
	_, body := a.do(t, http.MethodGet, page, nil)
	m := csrfInput.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no CSRF token on %s", page)
	}
	form.Set("_csrf_token", m[1])
	return a.do(t, http.MethodPost, action, form)
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != location {
		t.Fatalf("expected 302 to %q, got %d to %q", location, resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestSmoke_Health(t *testing.T) {
	t.Run("both up", func(t *testing.T) {
		app := newSmokeApp(t, nil)
		resp, body := app.do(t, http.MethodGet, "/health", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var got map[string]string
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("decoding %q: %v", body, err)
		}
		if got["postgres"] != "ok" || got["redis"] != "ok" {
			t.Errorf("unexpected health %v", got)
		}
		if len(resp.Cookies()) != 0 {
			t.Error("/health must not start a session")
		}
	})

	t.Run("postgres down", func(t *testing.T) {
		app := newSmokeApp(t, nil)
		app.db.HealthErr = errors.New("connection refused")
		resp, body := app.do(t, http.MethodGet, "/health", nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, `"postgres":"error"`) {
			t.Errorf("unexpected body %q", body)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		app := newSmokeApp(t, nil)
		app.redis.SetError("LOADING")
		resp, body := app.do(t, http.MethodGet, "/health", nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, `"redis":"error"`) {
			t.Errorf("unexpected body %q", body)
		}
	})
}

func TestSmoke_NotFound(t *testing.T) {
	app := newSmokeApp(t, nil)
	resp, body := app.do(t, http.MethodGet, "/no/such/page", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "That page does not exist.") {
		t.Errorf("expected 404 page, got %q", body)
	}
}

func TestSmoke_Metrics(t *testing.T) {
	app := newSmokeApp(t, nil)
	app.do(t, http.MethodGet, "/auth/login", nil)

	resp, body := app.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `places_http_requests_total{method="GET",route="/auth/login",status="200"} 1`) {
		t.Errorf("request not counted:\n%s", body)
	}
}

func TestSmoke_CSRFRequired(t *testing.T) {
	app := newSmokeApp(t, nil)
	app.do(t, http.MethodGet, "/auth/register", nil)

	resp, body := app.do(t, http.MethodPost, "/auth/register", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestSmoke_TestingModeSkipsCSRF(t *testing.T) {
	app := newSmokeApp(t, func(c *config.Config) { c.Testing = true })
	resp, _ := app.do(t, http.MethodPost, "/auth/register", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	expectRedirect(t, resp, "/auth/login")
}

func TestSmoke_SecureCookie(t *testing.T) {
	app := newSmokeApp(t, func(c *config.Config) { c.CookieSecure = true })
	resp, _ := app.do(t, http.MethodGet, "/auth/login", nil)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "__Host-session" {
			found = true
			if !c.Secure || !c.HttpOnly || c.Path != "/" {
				t.Errorf("unexpected cookie attributes %+v", c)
			}
		}
	}
	if !found {
		t.Errorf("expected __Host-session cookie, got %v", resp.Cookies())
	}
}

func TestSmoke_AddRequiresLogin(t *testing.T) {
	app := newSmokeApp(t, nil)
	resp, _ := app.do(t, http.MethodGet, "/add", nil)
	expectRedirect(t, resp, "/auth/login")
}

func TestSmoke_FullRoundTrip(t *testing.T) {
	app := newSmokeApp(t, nil)
	creds := func() url.Values { return url.Values{"email": {"a@x.com"}, "password": {"pw1"}} }

	resp, _ := app.submit(t, "/auth/register", "/auth/register", creds())
	expectRedirect(t, resp, "/auth/login")

	resp, _ = app.submit(t, "/auth/login", "/auth/login", creds())
	expectRedirect(t, resp, "/")

	_, body := app.do(t, http.MethodGet, "/", nil)
	if !strings.Contains(body, "a@x.com") || !strings.Contains(body, `data-api-key="maps-key"`) {
		t.Fatalf("index should show the user and api key:\n%s", body)
	}

	resp, _ = app.submit(t, "/add", "/add", url.Values{
		"name": {"Park"}, "description": {"Green"}, "postcode": {"SW1A 1AA"},
	})
	expectRedirect(t, resp, "/")

	_, body = app.do(t, http.MethodGet, "/locations?lat=51.5&lng=-0.14", nil)
	if !strings.Contains(body, `"name":"Park"`) || !strings.Contains(body, `"average_rating":null`) {
		t.Fatalf("new location missing from /locations: %s", body)
	}

	resp, _ = app.do(t, http.MethodGet, "/auth/logout", nil)
	expectRedirect(t, resp, "/")

	resp, _ = app.do(t, http.MethodGet, "/add", nil)
	expectRedirect(t, resp, "/auth/login")
}
