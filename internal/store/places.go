// places.go -- Location and review queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

// nearbyDegrees is the half-width of the lat/lng box used by LocationsNear.
const nearbyDegrees = 1.0

// locationSelect selects a location with its author and average rating.
// Callers append a WHERE clause, then locationGroupBy, then any ORDER BY.
const locationSelect = `
	SELECT l.id, l.user_id, l.name, l.description, l.postcode, l.lat, l.lng, l.created_at,
		u.email, AVG(r.rating)::float8
	FROM locations l
		JOIN users u ON u.id = l.user_id
		LEFT JOIN reviews r ON r.location_id = l.id`

const locationGroupBy = `
	GROUP BY l.id, u.email`

// CreateLocation inserts a new location owned by userID and returns its id.
func (s *PostgresStore) CreateLocation(ctx context.Context, loc Location) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO locations (user_id, name, description, postcode, lat, lng)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			loc.UserID, loc.Name, loc.Description, loc.Postcode, loc.Lat, loc.Lng,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("creating location: %w", err)
	}
	return id, nil
}

// LocationsNear returns locations within one degree of lat/lng in both axes.
func (s *PostgresStore) LocationsNear(ctx context.Context, lat, lng float64) ([]Location, error) {
	rows, err := s.pool.Query(ctx, locationSelect+`
		WHERE l.lat > $1 AND l.lat < $2 AND l.lng > $3 AND l.lng < $4`+locationGroupBy+`
		ORDER BY l.id`,
		lat-nearbyDegrees, lat+nearbyDegrees, lng-nearbyDegrees, lng+nearbyDegrees)
	if err != nil {
		return nil, fmt.Errorf("querying nearby locations: %w", err)
	}
	return collectLocations(rows)
}

// SearchLocations returns locations whose name, description and postcode all contain the
// given (case-insensitive) substrings. Empty arguments match everything.
func (s *PostgresStore) SearchLocations(ctx context.Context, name, description, postcode string) ([]Location, error) {
	rows, err := s.pool.Query(ctx, locationSelect+`
		WHERE l.name ILIKE $1 AND l.description ILIKE $2 AND l.postcode ILIKE $3`+locationGroupBy+`
		ORDER BY l.name`,
		likePattern(name), likePattern(description), likePattern(postcode))
	if err != nil {
		return nil, fmt.Errorf("searching locations: %w", err)
	}
	return collectLocations(rows)
}

// GetLocation fetches a single location with its author and average rating.
// Returns ErrNotFound if the id does not exist.
func (s *PostgresStore) GetLocation(ctx context.Context, id int64) (*Location, error) {
	rows, err := s.pool.Query(ctx, locationSelect+`
		WHERE l.id = $1`+locationGroupBy, id)
	if err != nil {
		return nil, fmt.Errorf("fetching location: %w", err)
	}
	locs, err := collectLocations(rows)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, ErrNotFound
	}
	return &locs[0], nil
}

// CreateReview inserts a review for a location.
// Returns ErrNotFound if the location does not exist (FK violation).
func (s *PostgresStore) CreateReview(ctx context.Context, rv Review) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO reviews (user_id, location_id, rating, review)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			rv.UserID, rv.LocationID, rv.Rating, rv.Text,
		).Scan(&id)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("creating review: %w", err)
	}
	return id, nil
}

// ReviewsForLocation returns all reviews for a location, oldest first.
func (s *PostgresStore) ReviewsForLocation(ctx context.Context, locationID int64) ([]Review, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.user_id, r.location_id, r.rating, r.review, u.email, r.created_at
		FROM reviews r
			JOIN users u ON u.id = r.user_id
		WHERE r.location_id = $1
		ORDER BY r.created_at, r.id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("fetching reviews: %w", err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Review, error) {
		var rv Review
		err := row.Scan(&rv.ID, &rv.UserID, &rv.LocationID, &rv.Rating, &rv.Text, &rv.AuthorEmail, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning reviews: %w", err)
	}
	return reviews, nil
}

// collectLocations scans rows produced by locationSelect, rounding averages to one decimal.
func collectLocations(rows pgx.Rows) ([]Location, error) {
	locs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Location, error) {
		var l Location
		err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.Description, &l.Postcode, &l.Lat, &l.Lng,
			&l.CreatedAt, &l.AuthorEmail, &l.AverageRating)
		if err != nil {
			return l, err
		}
		if l.AverageRating != nil {
			rounded := RoundRating(*l.AverageRating)
			l.AverageRating = &rounded
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning locations: %w", err)
	}
	return locs, nil
}

// RoundRating rounds an average rating to one decimal place.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// likePattern wraps s in % wildcards, escaping any LIKE metacharacters it contains.
func likePattern(s string) string {
	escaped := make([]rune, 0, len(s)+2)
	escaped = append(escaped, '%')
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, r)
	}
	return string(append(escaped, '%'))
}
