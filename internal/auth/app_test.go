// app_test.go

// shared HTTP test harness: the /auth routes behind the real session manager
// (miniredis), the Request Gate and a cookie-keeping client.
package auth

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/places/internal/render"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/MGallo-Code/places/internal/testutil"
	"github.com/MGallo-Code/places/internal/token"
	"github.com/go-chi/chi/v5"
)

type testApp struct {
	srv    *httptest.Server
	client *http.Client
	store  *testutil.MockStore
	mailer *testutil.MockMailer
	svc    *Service
}

type response struct {
	status   int
	location string
	body     string
}

// newTestApp builds the app. With csrf false the gate runs in testing mode.
func newTestApp(t *testing.T, csrf bool) *testApp {
	t.Helper()
	rs, _ := testutil.NewRedisStore(t)
	ms := testutil.NewMockStore()
	mm := &testutil.MockMailer{}
	rd, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	svc := &Service{
		Users:    ms,
		Sessions: rs,
		Tokens:   token.NewSigner([]byte("app-test-secret"), time.Hour),
		Mailer:   mm,
		BaseURL:  "http://places.test",
		ResetTTL: time.Hour,
	}
	gate := &Gate{Users: ms, Testing: !csrf}

	r := chi.NewRouter()
	r.Use(session.NewManager(rs, time.Hour, false).Middleware, gate.LoadUser, gate.CSRF)
	r.Mount("/auth", (&Handler{Service: svc, Render: rd}).Routes())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		RenderPage(rd, w, r, "index.html", "Home", "")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testApp{srv: srv, client: newClient(t), store: ms, mailer: mm, svc: svc}
}

// newClient returns a cookie-keeping client that does not follow redirects.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) read(t *testing.T, resp *http.Response, err error) response {
	t.Helper()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (a *testApp) get(t *testing.T, path string) response {
	t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	return a.read(t, resp, err)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) response {
	t.Helper()
	resp, err := a.client.PostForm(a.srv.URL+path, form)
	return a.read(t, resp, err)
}

var csrfInput = regexp.MustCompile(`name="_csrf_token" value="([^"]+)"`)

// csrfFrom extracts the CSRF token embedded in a rendered form.
func csrfFrom(t *testing.T, body string) string {
	t.Helper()
	m := csrfInput.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no CSRF token in page:\n%s", body)
	}
	return m[1]
}

// postForm GETs formPath for a fresh CSRF token, then POSTs form to postPath with it.
func (a *testApp) postForm(t *testing.T, formPath, postPath string, form url.Values) response {
	t.Helper()
	page := a.get(t, formPath)
	if form == nil {
		form = url.Values{}
	}
	form.Set(CSRFField, csrfFrom(t, page.body))
	return a.post(t, postPath, form)
}

func assertStatus(t *testing.T, got response, want int) {
	t.Helper()
	if got.status != want {
		t.Fatalf("status: expected %d, got %d (body %q)", want, got.status, got.body)
	}
}

func assertRedirect(t *testing.T, got response, location string) {
	t.Helper()
	if got.status != http.StatusFound || got.location != location {
		t.Fatalf("expected 302 to %q, got %d to %q", location, got.status, got.location)
	}
}

func assertBodyContains(t *testing.T, got response, want string) {
	t.Helper()
	if !strings.Contains(got.body, want) {
		t.Errorf("body missing %q:\n%s", want, got.body)
	}
}

// resetLink returns the path+query of the link in the last reset email.
func (a *testApp) resetLink(t *testing.T) string {
	t.Helper()
	msg, ok := a.mailer.Last()
	if !ok {
		t.Fatal("no email sent")
	}
	for _, line := range strings.Split(msg.Body, "\n") {
		if strings.HasPrefix(line, "http://places.test/") {
			return strings.TrimPrefix(line, "http://places.test")
		}
	}
	t.Fatalf("no link in email: %q", msg.Body)
	return ""
}
