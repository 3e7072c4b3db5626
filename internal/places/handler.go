// Package places serves the location pages: map index, nearby JSON, add, search and
// the per-place detail page with reviews.
//
// handler.go -- HTTP handlers for /, /locations, /add, /search and /place/{id}.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MGallo-Code/places/internal/auth"
	"github.com/MGallo-Code/places/internal/geocode"
	"github.com/MGallo-Code/places/internal/render"
	"github.com/MGallo-Code/places/internal/session"
	"github.com/MGallo-Code/places/internal/store"
	"github.com/go-chi/chi/v5"
)

// Store is the subset of the database the places pages need.
type Store interface {
	CreateLocation(ctx context.Context, loc store.Location) (int64, error)
	LocationsNear(ctx context.Context, lat, lng float64) ([]store.Location, error)
	SearchLocations(ctx context.Context, name, description, postcode string) ([]store.Location, error)
	GetLocation(ctx context.Context, id int64) (*store.Location, error)
	CreateReview(ctx context.Context, rv store.Review) (int64, error)
	ReviewsForLocation(ctx context.Context, locationID int64) ([]store.Review, error)
}

// Geocoder resolves a postcode to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, postcode string) (geocode.Coordinates, error)
}

const notFoundMessage = "Sorry, that location page was not found."

// Handler holds dependencies for the places pages.
type Handler struct {
	Store    Store
	Geocoder Geocoder
	Render   *render.Renderer
	// APIKey is handed to the map script on the index page.
	APIKey string
}

// Mount registers the places routes on r. /add requires a logged-in user.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/locations", h.Locations)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin)
		r.Get("/add", h.AddForm)
		r.Post("/add", h.Add)
	})
	r.Get("/search", h.SearchForm)
	r.Post("/search", h.Search)
	r.Get("/place/{id}", h.Place)
	r.Post("/place/{id}", h.PostReview)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	auth.RenderPage(h.Render, w, r, "index.html", "Places", h.APIKey)
}

// locationJSON is one entry of the /locations response.
// AverageRating is null for a location without reviews.
type locationJSON struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Postcode      string   `json:"postcode"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	AverageRating *float64 `json:"average_rating"`
}

// Locations handles GET /locations?lat=..&lng=.. for the map script.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lng are required numbers"})
		return
	}

	locs, err := h.Store.LocationsNear(r.Context(), lat, lng)
	if err != nil {
		slog.Error("listing nearby locations", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]locationJSON, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationJSON{
			ID:            l.ID,
			Name:          l.Name,
			Description:   l.Description,
			Postcode:      l.Postcode,
			Lat:           l.Lat,
			Lng:           l.Lng,
			AverageRating: l.AverageRating,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AddForm(w http.ResponseWriter, r *http.Request) {
	auth.RenderPage(h.Render, w, r, "add.html", "Add a Place", nil)
}

// Add handles POST /add: validates, geocodes the postcode, then stores the location.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	name := strings.TrimSpace(r.PostFormValue("name"))
	description := strings.TrimSpace(r.PostFormValue("description"))
	postcode := strings.TrimSpace(r.PostFormValue("postcode"))

	if name == "" || description == "" || postcode == "" {
		sess.PushFlash("Name, description and postcode are required.")
		h.AddForm(w, r)
		return
	}

	coords, err := h.Geocoder.Geocode(r.Context(), postcode)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoResults) {
			slog.Error("geocoding failed", "postcode", postcode, "error", err)
		}
		sess.PushFlash("Error geocoding postcode.")
		h.AddForm(w, r)
		return
	}

	user := auth.CurrentUser(r.Context())
	id, err := h.Store.CreateLocation(r.Context(), store.Location{
		UserID:      user.ID,
		Name:        name,
		Description: description,
		Postcode:    postcode,
		Lat:         coords.Lat,
		Lng:         coords.Lng,
	})
	if err != nil {
		auth.InternalServerError(h.Render, w, r, err)
		return
	}

	slog.Info("location added", "location_id", id, "user_id", user.ID)
	sess.PushFlash("Location added!")
	http.Redirect(w, r, "/", http.StatusFound)
}

// searchData is the template data for search.html. A nil *searchData renders the bare form.
type searchData struct {
	Results []store.Location
}

func (h *Handler) SearchForm(w http.ResponseWriter, r *http.Request) {
	auth.RenderPage(h.Render, w, r, "search.html", "Search", nil)
}

// Search handles POST /search. At least one field must be filled in.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("name"))
	description := strings.TrimSpace(r.PostFormValue("description"))
	postcode := strings.TrimSpace(r.PostFormValue("postcode"))

	if name == "" && description == "" && postcode == "" {
		session.FromContext(r.Context()).PushFlash("Please enter a name, description or postcode.")
		h.SearchForm(w, r)
		return
	}

	results, err := h.Store.SearchLocations(r.Context(), name, description, postcode)
	if err != nil {
		auth.InternalServerError(h.Render, w, r, err)
		return
	}
	auth.RenderPage(h.Render, w, r, "search.html", "Search", &searchData{Results: results})
}

// placeData is the template data for place.html.
type placeData struct {
	Location *store.Location
	Reviews  []store.Review
}

// placeID parses {id}, flashing and redirecting to the index when it is not a location id.
func placeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		notFound(w, r)
		return 0, false
	}
	return id, true
}

func notFound(w http.ResponseWriter, r *http.Request) {
	session.FromContext(r.Context()).PushFlash(notFoundMessage)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Place handles GET /place/{id}.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	id, ok := placeID(w, r)
	if !ok {
		return
	}
	h.renderPlace(w, r, id)
}

func (h *Handler) renderPlace(w http.ResponseWriter, r *http.Request, id int64) {
	loc, err := h.Store.GetLocation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, r)
			return
		}
		auth.InternalServerError(h.Render, w, r, err)
		return
	}

	reviews, err := h.Store.ReviewsForLocation(r.Context(), id)
	if err != nil {
		auth.InternalServerError(h.Render, w, r, err)
		return
	}
	auth.RenderPage(h.Render, w, r, "place.html", loc.Name, &placeData{Location: loc, Reviews: reviews})
}

// PostReview handles POST /place/{id}. Failures are flashed above the re-rendered page.
func (h *Handler) PostReview(w http.ResponseWriter, r *http.Request) {
	id, ok := placeID(w, r)
	if !ok {
		return
	}
	sess := session.FromContext(r.Context())

	user := auth.CurrentUser(r.Context())
	if user == nil {
		sess.PushFlash("Sorry, you must be logged in to post a review.")
		h.renderPlace(w, r, id)
		return
	}

	text := strings.TrimSpace(r.PostFormValue("review"))
	rawRating := r.PostFormValue("rating")
	if rawRating == "" || text == "" {
		sess.PushFlash("Rating and review are required.")
		h.renderPlace(w, r, id)
		return
	}
	rating, err := strconv.Atoi(rawRating)
	if err != nil || rating < 1 || rating > 5 {
		sess.PushFlash("Rating must be a whole number from 1 to 5.")
		h.renderPlace(w, r, id)
		return
	}

	_, err = h.Store.CreateReview(r.Context(), store.Review{
		UserID:     user.ID,
		LocationID: id,
		Rating:     rating,
		Text:       text,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, r)
			return
		}
		auth.InternalServerError(h.Render, w, r, err)
		return
	}

	slog.Info("review added", "location_id", id, "user_id", user.ID, "rating", rating)
	sess.PushFlash("Review added!")
	http.Redirect(w, r, "/place/"+strconv.FormatInt(id, 10), http.StatusFound)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
