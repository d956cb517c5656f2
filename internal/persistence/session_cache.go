package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache remembers recently validated sessions. It is never
// authoritative: a miss falls through to Postgres and entries never outlive
// the session they describe.
type SessionCache struct {
	redis  *Redis
	maxTTL time.Duration
}

// NewSessionCache builds a cache whose entries live at most maxTTL.
func NewSessionCache(r *Redis, maxTTL time.Duration) *SessionCache {
	return &SessionCache{redis: r, maxTTL: maxTTL}
}

// Get returns the cached user for the session key.
func (c *SessionCache) Get(ctx context.Context, sessionKey string) (string, bool, error) {
	if c == nil || c.redis == nil {
		return "", false, nil
	}
	user, err := c.redis.Client.Get(ctx, c.redis.Key("session", sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user, true, nil
}

// Put caches the session until the earlier of expiresAt and now+maxTTL.
func (c *SessionCache) Put(ctx context.Context, sessionKey, user string, expiresAt time.Time) error {
	if c == nil || c.redis == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if c.maxTTL > 0 && ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return nil
	}
	return c.redis.Client.Set(ctx, c.redis.Key("session", sessionKey), user, ttl).Err()
}
