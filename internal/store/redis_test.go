package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// newTestRedis starts an in-process Redis and returns a store connected to it.
func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

func int64Ptr(v int64) *int64 { return &v }

// --- SetSession + GetSession ---

func TestSetAndGetSession(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)

	data := SessionData{
		ID:                "sess-1",
		UserID:            int64Ptr(42),
		PendingResetEmail: "reset@example.com",
		LastEmail:         "last@example.com",
		CSRFToken:         "csrf",
		Flashes:           []string{"hello"},
	}
	if err := rs.SetSession(ctx, "key1", data, time.Hour); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	got, err := rs.GetSession(ctx, "key1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != data.ID || got.UserID == nil || *got.UserID != 42 {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if got.PendingResetEmail != data.PendingResetEmail || got.LastEmail != data.LastEmail || got.CSRFToken != data.CSRFToken {
		t.Errorf("unexpected string fields: %+v", got)
	}
	if len(got.Flashes) != 1 || got.Flashes[0] != "hello" {
		t.Errorf("flashes: expected [hello], got %v", got.Flashes)
	}

	if ttl := mr.TTL("session:key1"); ttl != time.Hour {
		t.Errorf("TTL: expected 1h, got %v", ttl)
	}
	if !mr.Exists("user_sessions:42") {
		t.Error("expected authenticated session to be tracked for its user")
	}
}

func TestSetSessionAnonymousNotTracked(t *testing.T) {
	rs, mr := newTestRedis(t)
	if err := rs.SetSession(context.Background(), "anon", SessionData{ID: "a"}, time.Minute); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "session:anon" {
		t.Errorf("expected only session:anon, got %v", keys)
	}
}

// --- GetSession (miss) ---

func TestGetSessionMiss(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)

	t.Run("unknown key", func(t *testing.T) {
		got, err := rs.GetSession(ctx, "missing")
		if !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss, got %v", err)
		}
		if got != nil {
			t.Error("expected nil session on miss")
		}
	})

	t.Run("expired key", func(t *testing.T) {
		if err := rs.SetSession(ctx, "short", SessionData{ID: "s"}, time.Second); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
		mr.FastForward(2 * time.Second)

		if _, err := rs.GetSession(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("expected ErrCacheMiss after expiry, got %v", err)
		}
	})

	t.Run("corrupt payload is an error, not a miss", func(t *testing.T) {
		mr.Set("session:corrupt", "{not json")
		_, err := rs.GetSession(ctx, "corrupt")
		if err == nil || errors.Is(err, ErrCacheMiss) {
			t.Errorf("expected parse error, got %v", err)
		}
	})
}

// --- DeleteSession ---

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	rs, _ := newTestRedis(t)

	if err := rs.SetSession(ctx, "gone", SessionData{ID: "g"}, time.Hour); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := rs.DeleteSession(ctx, "gone"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := rs.GetSession(ctx, "gone"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after delete, got %v", err)
	}
	if err := rs.DeleteSession(ctx, "gone"); err != nil {
		t.Errorf("deleting a missing session should succeed, got %v", err)
	}
}

// --- RefreshSession ---

func TestRefreshSession(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)

	if err := rs.SetSession(ctx, "slide", SessionData{ID: "s"}, time.Minute); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if err := rs.RefreshSession(ctx, "slide", nil, time.Minute); err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if ttl := mr.TTL("session:slide"); ttl != time.Minute {
		t.Errorf("TTL: expected 1m after refresh, got %v", ttl)
	}

	if err := rs.RefreshSession(ctx, "missing", nil, time.Minute); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for missing key, got %v", err)
	}
}

func TestRefreshSession_SlidesUserSet(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)
	uid := int64(7)

	if err := rs.SetSession(ctx, "k1", SessionData{ID: "s", UserID: &uid}, 24*time.Hour); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	// Each step stays inside the session TTL but together they outlive the
	// Set's original expiry.
	for i := 0; i < 3; i++ {
		mr.FastForward(20 * time.Hour)
		if err := rs.RefreshSession(ctx, "k1", &uid, 24*time.Hour); err != nil {
			t.Fatalf("RefreshSession #%d: %v", i+1, err)
		}
	}
	if ttl := mr.TTL("user_sessions:7"); ttl != 24*time.Hour {
		t.Errorf("user set TTL: expected 24h after refresh, got %v", ttl)
	}

	if err := rs.DeleteAllUserSessions(ctx, uid); err != nil {
		t.Fatalf("DeleteAllUserSessions: %v", err)
	}
	if _, err := rs.GetSession(ctx, "k1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected session revoked after sliding refreshes, got %v", err)
	}
}

// --- DeleteAllUserSessions ---

func TestDeleteAllUserSessions(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedis(t)

	for _, key := range []string{"u1a", "u1b"} {
		if err := rs.SetSession(ctx, key, SessionData{ID: key, UserID: int64Ptr(1)}, time.Hour); err != nil {
			t.Fatalf("SetSession(%s): %v", key, err)
		}
	}
	if err := rs.SetSession(ctx, "u2", SessionData{ID: "u2", UserID: int64Ptr(2)}, time.Hour); err != nil {
		t.Fatalf("SetSession(u2): %v", err)
	}

	if err := rs.DeleteAllUserSessions(ctx, 1); err != nil {
		t.Fatalf("DeleteAllUserSessions: %v", err)
	}

	for _, key := range []string{"u1a", "u1b"} {
		if _, err := rs.GetSession(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("%s: expected ErrCacheMiss, got %v", key, err)
		}
	}
	if mr.Exists("user_sessions:1") {
		t.Error("tracking set should be removed")
	}
	if _, err := rs.GetSession(ctx, "u2"); err != nil {
		t.Errorf("other user's session should survive, got %v", err)
	}
}

func TestRedisCheckHealth(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	rdb, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer rdb.Close()
	rs := NewRedisStore(rdb)

	if err := rs.CheckHealth(ctx); err != nil {
		t.Errorf("CheckHealth: %v", err)
	}
	mr.Close()
	if err := rs.CheckHealth(ctx); err == nil {
		t.Error("expected error once Redis is down")
	}
}

func TestNewRedisClientBadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Error("expected error for malformed URL")
	}
}
