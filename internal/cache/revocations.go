// Package cache holds the Redis-backed state the server keeps outside the
// main store. Today that is the session revocation list used by logout.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "revoked:session:"

// Revocations records revoked session token ids until the token would have
// expired anyway. Redis expires the keys, so the list never needs cleanup.
//
// A nil *Revocations is valid: nothing is ever revoked and Revoke is a
// no-op. The server uses that when REDIS_ADDR is not configured.
type Revocations struct {
	client *redis.Client
}

// New creates a Revocations list backed by the Redis server at addr.
// The connection is lazy; call Ping to check it at startup.
func New(addr, password string, db int) *Revocations {
	return &Revocations{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping checks that Redis is reachable.
func (r *Revocations) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: pinging redis: %w", err)
	}
	return nil
}

// Revoke marks tokenID as revoked for ttl. A ttl that is already spent
// means the token is expired and there is nothing to record.
func (r *Revocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if r == nil || r.client == nil || tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revocationKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache: revoking session: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked. On a Redis failure it
// returns false together with the error and leaves the policy to the caller.
func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r == nil || r.client == nil || tokenID == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: checking revocation: %w", err)
	}
	return n > 0, nil
}

// Close releases the connection pool.
func (r *Revocations) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func revocationKey(tokenID string) string {
	return revokedSessionPrefix + tokenID
}
