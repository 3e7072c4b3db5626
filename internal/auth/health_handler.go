// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthChecker pings one backing service.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthHandler pings Postgres and Redis and reports per-dependency status.
// Returns 200 if both are healthy, 503 if either is down.
func HealthHandler(postgres, redis HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postgresStatus := "ok"
		redisStatus := "ok"

		if err := postgres.CheckHealth(r.Context()); err != nil {
			logError(r, "postgres health check failed", "error", err)
			postgresStatus = "error"
		}
		if err := redis.CheckHealth(r.Context()); err != nil {
			logError(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}

		w.Header().Set("Content-Type", "application/json")
		if postgresStatus != "ok" || redisStatus != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(struct {
			Postgres string `json:"postgres"`
			Redis    string `json:"redis"`
		}{postgresStatus, redisStatus})
	}
}
