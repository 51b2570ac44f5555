package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker records per-user cut-off times. Sessions issued at or before a
// user's cut-off read as anonymous.
type Revoker interface {
	Revoke(ctx context.Context, userID string) error
	RevokedAt(ctx context.Context, userID string) (time.Time, error)
}

// RedisRevoker keeps cut-offs in Redis. Entries expire after the session
// lifetime since no older cookie can still be valid by then.
type RedisRevoker struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisRevoker constructs a RedisRevoker.
func NewRedisRevoker(client *redis.Client, ttl time.Duration) *RedisRevoker {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	return &RedisRevoker{client: client, ttl: ttl, now: time.Now}
}

// Revoke invalidates every session issued to userID up to now.
func (r *RedisRevoker) Revoke(ctx context.Context, userID string) error {
	if r == nil || r.client == nil || userID == "" {
		return nil
	}
	return r.client.Set(ctx, revokeKey(userID), r.now().UnixNano(), r.ttl).Err()
}

// RevokedAt returns the cut-off for userID, or the zero time when none exists.
func (r *RedisRevoker) RevokedAt(ctx context.Context, userID string) (time.Time, error) {
	if r == nil || r.client == nil || userID == "" {
		return time.Time{}, nil
	}
	nanos, err := r.client.Get(ctx, revokeKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}

func revokeKey(userID string) string {
	return "session:revoked:" + userID
}
