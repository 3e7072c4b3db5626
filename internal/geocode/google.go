// Package geocode resolves postcodes to coordinates.
//
// google.go -- Google Geocoding API client with an in-memory LRU cache.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MGallo-Code/places/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"googlemaps.github.io/maps"
)

const (
	cacheSize = 1024
	cacheTTL  = 24 * time.Hour
)

var (
	// ErrNoResults is returned when the API knows no location for the postcode.
	ErrNoResults = errors.New("geocode: no results")

	// ErrNotConfigured is returned by Disabled for every lookup.
	ErrNotConfigured = errors.New("geocode: no API key configured")
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64
	Lng float64
}

// GoogleGeocoder looks up postcodes against the Google Geocoding API.
// Successful lookups are cached by normalized postcode.
type GoogleGeocoder struct {
	client  *maps.Client
	cache   *lru.LRU[string, Coordinates]
	metrics *metrics.Metrics
}

// NewGoogleGeocoder returns a geocoder using apiKey. m may be nil.
// Uses a 5s timeout on the outbound HTTP client; opts are appended to the maps client options.
func NewGoogleGeocoder(apiKey string, m *metrics.Metrics, opts ...maps.ClientOption) (*GoogleGeocoder, error) {
	base := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	}
	client, err := maps.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("geocode: creating maps client: %w", err)
	}
	return &GoogleGeocoder{
		client:  client,
		cache:   lru.NewLRU[string, Coordinates](cacheSize, nil, cacheTTL),
		metrics: m,
	}, nil
}

// Disabled stands in for GoogleGeocoder when no API key is set.
type Disabled struct{}

// Geocode always fails with ErrNotConfigured.
func (Disabled) Geocode(context.Context, string) (Coordinates, error) {
	return Coordinates{}, ErrNotConfigured
}

// normalize folds case and drops whitespace, so "sw1a 1aa" and "SW1A1AA" share a cache entry.
func normalize(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), ""))
}

// Geocode returns the coordinates of the first result for postcode.
// Returns ErrNoResults when the API finds nothing.
func (g *GoogleGeocoder) Geocode(ctx context.Context, postcode string) (Coordinates, error) {
	key := normalize(postcode)
	if key == "" {
		return Coordinates{}, ErrNoResults
	}
	if c, ok := g.cache.Get(key); ok {
		g.metrics.GeocodeLookup("hit")
		return c, nil
	}

	c, err := g.lookup(ctx, postcode)
	switch {
	case errors.Is(err, ErrNoResults):
		g.metrics.GeocodeLookup("none")
		return Coordinates{}, err
	case err != nil:
		g.metrics.GeocodeLookup("error")
		return Coordinates{}, err
	}

	g.metrics.GeocodeLookup("miss")
	g.cache.Add(key, c)
	return c, nil
}

func (g *GoogleGeocoder) lookup(ctx context.Context, postcode string) (Coordinates, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: postcode})
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode: %w", err)
	}
	// ZERO_RESULTS comes back as an empty slice with a nil error.
	if len(results) == 0 {
		return Coordinates{}, ErrNoResults
	}

	loc := results[0].Geometry.Location
	return Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}
