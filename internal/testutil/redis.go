// redis.go
//
// In-process Redis for tests that need the real session store.
package testutil

import (
	"context"
	"testing"

	"github.com/MGallo-Code/places/internal/store"
	"github.com/alicebob/miniredis/v2"
)

// NewRedisStore starts a miniredis server for the duration of t and returns a
// RedisStore connected to it.
func NewRedisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := store.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connecting to miniredis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisStore(rdb), mr
}
