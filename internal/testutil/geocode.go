// geocode.go
//
// Mock for places.Geocoder.
package testutil

import (
	"context"
	"sync"

	"github.com/MGallo-Code/places/internal/geocode"
)

// MockGeocoder answers from a fixed postcode table. Unknown postcodes return
// geocode.ErrNoResults; set Err to simulate an API failure.
type MockGeocoder struct {
	Known map[string]geocode.Coordinates
	Err   error

	mu    sync.Mutex
	Calls []string
}

func (m *MockGeocoder) Geocode(_ context.Context, postcode string) (geocode.Coordinates, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, postcode)
	m.mu.Unlock()
	if m.Err != nil {
		return geocode.Coordinates{}, m.Err
	}
	c, ok := m.Known[postcode]
	if !ok {
		return geocode.Coordinates{}, geocode.ErrNoResults
	}
	return c, nil
}
