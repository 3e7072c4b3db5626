// Package metrics defines the Prometheus collectors exported at /metrics.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the app.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthEventsTotal     *prometheus.CounterVec
	CSRFRejectionsTotal prometheus.Counter
	GeocodeLookupsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "places_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_auth_events_total",
				Help: "Authentication events by kind and outcome",
			},
			[]string{"event", "result"},
		),
		CSRFRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "places_csrf_rejections_total",
				Help: "POST requests rejected for a missing or wrong CSRF token",
			},
		),
		GeocodeLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_geocode_lookups_total",
				Help: "Postcode geocode lookups by result (hit, miss, none, error)",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.CSRFRejectionsTotal,
		m.GeocodeLookupsTotal,
	)
	return m
}

// AuthEvent counts one auth event, e.g. ("login", "success").
func (m *Metrics) AuthEvent(event, result string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, result).Inc()
}

// CSRFRejected counts one rejected POST.
func (m *Metrics) CSRFRejected() {
	if m == nil {
		return
	}
	m.CSRFRejectionsTotal.Inc()
}

// GeocodeLookup counts one geocode lookup: hit (cached), miss (fetched), none or error.
func (m *Metrics) GeocodeLookup(result string) {
	if m == nil {
		return
	}
	m.GeocodeLookupsTotal.WithLabelValues(result).Inc()
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Middleware instruments requests. Routes are labelled by chi route pattern, not
// raw path, so /place/{id} stays a single series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
