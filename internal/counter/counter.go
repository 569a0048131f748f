// Package counter provides the Redis-like keyspace the rate limiter counts in.
package counter

import (
	"context"
	"time"
)

// Store is a shared counter keyspace with per-key expiry. Increment and
// Expire are issued as separate operations; slight overcounting under
// concurrent increments is acceptable, undercounting is not.
type Store interface {
	// Get returns the current value for key, or 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)

	// Increment atomically adds 1 to key, creating it at 1 when absent,
	// and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the key's time-to-live.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time-to-live for key, or 0 when the key
	// is absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping verifies connectivity to the counter store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
