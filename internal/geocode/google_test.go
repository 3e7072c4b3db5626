// google_test.go -- unit tests for GoogleGeocoder.Geocode.
package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MGallo-Code/places/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"googlemaps.github.io/maps"
)

// newTestGeocoder points a geocoder at a fake API serving body, counting requests.
func newTestGeocoder(t *testing.T, status int, body string) (*GoogleGeocoder, *atomic.Int32, *metrics.Metrics) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/maps/api/geocode/json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key, query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	g := mustGeocoder(t, "test-key", m, srv.URL)
	return g, &calls, m
}

func mustGeocoder(t *testing.T, key string, m *metrics.Metrics, baseURL string) *GoogleGeocoder {
	t.Helper()
	g, err := NewGoogleGeocoder(key, m, maps.WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("NewGoogleGeocoder: %v", err)
	}
	return g
}

const okBody = `{"status":"OK","results":[{"geometry":{"location":{"lat":51.501,"lng":-0.1416}}}]}`

func TestGeocode(t *testing.T) {
	t.Run("returns first result", func(t *testing.T) {
		g, _, _ := newTestGeocoder(t, http.StatusOK, okBody)
		c, err := g.Geocode(context.Background(), "SW1A 1AA")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Lat != 51.501 || c.Lng != -0.1416 {
			t.Errorf("unexpected coordinates %+v", c)
		}
	})

	t.Run("sends postcode as address", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("address")
			w.Write([]byte(okBody))
		}))
		defer srv.Close()

		g := mustGeocoder(t, "k", nil, srv.URL)
		if _, err := g.Geocode(context.Background(), "SW1A 1AA"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "SW1A 1AA" {
			t.Errorf("expected address %q, got %q", "SW1A 1AA", got)
		}
	})

	t.Run("cache serves equivalent postcodes", func(t *testing.T) {
		g, calls, m := newTestGeocoder(t, http.StatusOK, okBody)
		ctx := context.Background()
		for _, pc := range []string{"SW1A 1AA", "sw1a1aa", " Sw1a  1aA "} {
			if _, err := g.Geocode(ctx, pc); err != nil {
				t.Fatalf("%q: unexpected error: %v", pc, err)
			}
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("expected 1 API call, got %d", n)
		}
		if v := testutil.ToFloat64(m.GeocodeLookupsTotal.WithLabelValues("hit")); v != 2 {
			t.Errorf("expected 2 cache hits, got %v", v)
		}
		if v := testutil.ToFloat64(m.GeocodeLookupsTotal.WithLabelValues("miss")); v != 1 {
			t.Errorf("expected 1 miss, got %v", v)
		}
	})

	t.Run("zero results", func(t *testing.T) {
		g, calls, _ := newTestGeocoder(t, http.StatusOK, `{"status":"ZERO_RESULTS","results":[]}`)
		ctx := context.Background()
		if _, err := g.Geocode(ctx, "NOWHERE"); !errors.Is(err, ErrNoResults) {
			t.Fatalf("expected ErrNoResults, got %v", err)
		}
		g.Geocode(ctx, "NOWHERE")
		if n := calls.Load(); n != 2 {
			t.Errorf("failures must not be cached, got %d calls", n)
		}
	})

	t.Run("blank postcode never calls the API", func(t *testing.T) {
		g, calls, _ := newTestGeocoder(t, http.StatusOK, okBody)
		if _, err := g.Geocode(context.Background(), "   "); !errors.Is(err, ErrNoResults) {
			t.Errorf("expected ErrNoResults, got %v", err)
		}
		if calls.Load() != 0 {
			t.Error("expected no API call")
		}
	})

	t.Run("api error status", func(t *testing.T) {
		g, _, m := newTestGeocoder(t, http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key"}`)
		_, err := g.Geocode(context.Background(), "SW1A 1AA")
		if err == nil || errors.Is(err, ErrNoResults) {
			t.Fatalf("expected api error, got %v", err)
		}
		if !strings.Contains(err.Error(), "REQUEST_DENIED") {
			t.Errorf("expected status in error, got %q", err.Error())
		}
		if v := testutil.ToFloat64(m.GeocodeLookupsTotal.WithLabelValues("error")); v != 1 {
			t.Errorf("expected 1 error, got %v", v)
		}
	})

	t.Run("http error status", func(t *testing.T) {
		g, _, _ := newTestGeocoder(t, http.StatusInternalServerError, `{}`)
		if _, err := g.Geocode(context.Background(), "SW1A 1AA"); err == nil {
			t.Error("expected error for 500 response")
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		g, _, _ := newTestGeocoder(t, http.StatusOK, "not json")
		if _, err := g.Geocode(context.Background(), "SW1A 1AA"); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})

	t.Run("network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		g := mustGeocoder(t, "k", nil, srv.URL)
		if _, err := g.Geocode(context.Background(), "SW1A 1AA"); err == nil {
			t.Error("expected error for closed server")
		}
	})
}

func TestNewGoogleGeocoder_RequiresKey(t *testing.T) {
	if _, err := NewGoogleGeocoder("", nil); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Geocode(context.Background(), "SW1A 1AA")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SW1A 1AA", "SW1A1AA"},
		{" sw1a\t1aa ", "SW1A1AA"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
