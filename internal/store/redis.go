// redis.go -- go-redis client for server-side session storage.
//
// Session data lives under session:<key> with a TTL refreshed on every save.
// Authenticated sessions are also tracked in a per-user Set so a password reset
// can end every session belonging to that user.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for session storage operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL, connects, and pings to verify connectivity.
// The returned client is shared by everything that needs Redis.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewRedisStore returns a session store over an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb}
}

// CheckHealth pings Redis. Used by GET /health.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func sessionKey(key string) string {
	return "session:" + key
}

func userSessionsKey(userID int64) string {
	return "user_sessions:" + strconv.FormatInt(userID, 10)
}

// GetSession loads session data by key.
// Returns ErrCacheMiss if the key does not exist or has expired.
func (s *RedisStore) GetSession(ctx context.Context, key string) (*SessionData, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &data, nil
}

// SetSession writes session data under key with the given TTL.
// When the session is authenticated, key is also added to the user's tracking Set.
func (s *RedisStore) SetSession(ctx context.Context, key string, data SessionData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(key), payload, ttl)
	if data.UserID != nil {
		setKey := userSessionsKey(*data.UserID)
		pipe.SAdd(ctx, setKey, key)
		pipe.Expire(ctx, setKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// RefreshSession extends the TTL of an existing session without rewriting it.
// For an authenticated session (userID non-nil) the user's tracking Set is
// slid forward too and re-registers key, so DeleteAllUserSessions still finds it.
// Returns ErrCacheMiss if the key is already gone.
func (s *RedisStore) RefreshSession(ctx context.Context, key string, userID *int64, ttl time.Duration) error {
	ok, err := s.rdb.Expire(ctx, sessionKey(key), ttl).Result()
	if err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	if !ok {
		return ErrCacheMiss
	}
	if userID == nil {
		return nil
	}

	setKey := userSessionsKey(*userID)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refreshing user sessions: %w", err)
	}
	return nil
}

// DeleteSession removes a single session. Deleting a missing key is not an error.
func (s *RedisStore) DeleteSession(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteAllUserSessions removes every tracked session for userID plus the tracking Set.
func (s *RedisStore) DeleteAllUserSessions(ctx context.Context, userID int64) error {
	setKey := userSessionsKey(userID)

	keys, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("fetching user sessions: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, sessionKey(k))
	}
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}
