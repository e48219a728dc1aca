// Package ephemeral holds short-lived, TTL-bound state shared by every replica:
// OTP codes, revoked access tokens and rate-limit counters.
package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can tell an outage from a miss.
var ErrUnavailable = errors.New("ephemeral store unavailable")

// Store is a key-value store with store-managed expiry. Every operation is atomic
// for a single key.
type Store interface {
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns found=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr increments a counter. ttl is applied when the counter has no expiry yet,
	// so a window never outlives ttl. ttl must be positive.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
