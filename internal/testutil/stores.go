// stores.go
//
// Shared mock implementations of the store, mailer and geocoder interfaces.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MGallo-Code/places/internal/store"
)

// MockStore implements auth.UserStore, places.Store and auth.HealthChecker for tests.
// Always stateful...users, locations and reviews live in maps like a real store.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	CreateUserErr     error
	GetUserByEmailErr error
	GetUserByIDErr    error
	UpdatePasswordErr error
	CreateLocationErr error
	LocationsErr      error
	CreateReviewErr   error
	HealthErr         error

	// ConflictOnCreate makes CreateUser report a unique violation even when the
	// email is not yet stored, as if a concurrent insert won the race.
	ConflictOnCreate bool

	Users     map[string]*store.User // keyed by email
	Locations map[int64]*store.Location
	Reviews   []store.Review

	nextID int64
	mu     sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users, indexed by email.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users:     make(map[string]*store.User),
		Locations: make(map[int64]*store.Location),
	}
	for _, u := range users {
		ms.Users[u.Email] = u
		if u.ID > ms.nextID {
			ms.nextID = u.ID
		}
	}
	return ms
}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MockStore) CreateUser(_ context.Context, email, passwordHash string) (int64, error) {
	if m.CreateUserErr != nil {
		return 0, m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[email]; ok || m.ConflictOnCreate {
		return 0, store.ErrConflict
	}
	now := time.Now()
	u := &store.User{ID: m.id(), Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.Users[email] = u
	return u.ID, nil
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if m.GetUserByEmailErr != nil {
		return nil, m.GetUserByEmailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	if m.GetUserByIDErr != nil {
		return nil, m.GetUserByIDErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	if m.UpdatePasswordErr != nil {
		return m.UpdatePasswordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			u.UpdatedAt = time.Now()
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStore) CheckHealth(context.Context) error {
	return m.HealthErr
}

// UserCount returns how many users are stored.
func (m *MockStore) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users)
}

// --- places ---

func (m *MockStore) emailOf(userID int64) string {
	for _, u := range m.Users {
		if u.ID == userID {
			return u.Email
		}
	}
	return ""
}

// withRating fills AuthorEmail and AverageRating like the real read queries.
// Caller holds mu.
func (m *MockStore) withRating(l store.Location) store.Location {
	l.AuthorEmail = m.emailOf(l.UserID)
	var sum, n int
	for _, rv := range m.Reviews {
		if rv.LocationID == l.ID {
			sum += rv.Rating
			n++
		}
	}
	if n > 0 {
		avg := store.RoundRating(float64(sum) / float64(n))
		l.AverageRating = &avg
	}
	return l
}

func (m *MockStore) CreateLocation(_ context.Context, loc store.Location) (int64, error) {
	if m.CreateLocationErr != nil {
		return 0, m.CreateLocationErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loc.ID = m.id()
	loc.CreatedAt = time.Now()
	m.Locations[loc.ID] = &loc
	return loc.ID, nil
}

func (m *MockStore) sorted(keep func(store.Location) bool) []store.Location {
	var out []store.Location
	for _, l := range m.Locations {
		if keep(*l) {
			out = append(out, m.withRating(*l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockStore) LocationsNear(_ context.Context, lat, lng float64) ([]store.Location, error) {
	if m.LocationsErr != nil {
		return nil, m.LocationsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(l store.Location) bool {
		return l.Lat > lat-1 && l.Lat < lat+1 && l.Lng > lng-1 && l.Lng < lng+1
	}), nil
}

func (m *MockStore) SearchLocations(_ context.Context, name, description, postcode string) ([]store.Location, error) {
	if m.LocationsErr != nil {
		return nil, m.LocationsErr
	}
	contains := func(s, sub string) bool {
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(l store.Location) bool {
		return contains(l.Name, name) && contains(l.Description, description) && contains(l.Postcode, postcode)
	}), nil
}

func (m *MockStore) GetLocation(_ context.Context, id int64) (*store.Location, error) {
	if m.LocationsErr != nil {
		return nil, m.LocationsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.Locations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := m.withRating(*l)
	return &out, nil
}

func (m *MockStore) CreateReview(_ context.Context, rv store.Review) (int64, error) {
	if m.CreateReviewErr != nil {
		return 0, m.CreateReviewErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Locations[rv.LocationID]; !ok {
		return 0, store.ErrNotFound
	}
	rv.ID = m.id()
	rv.CreatedAt = time.Now()
	m.Reviews = append(m.Reviews, rv)
	return rv.ID, nil
}

func (m *MockStore) ReviewsForLocation(_ context.Context, locationID int64) ([]store.Review, error) {
	if m.LocationsErr != nil {
		return nil, m.LocationsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Review
	for _, rv := range m.Reviews {
		if rv.LocationID == locationID {
			rv.AuthorEmail = m.emailOf(rv.UserID)
			out = append(out, rv)
		}
	}
	return out, nil
}
