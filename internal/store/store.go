// Package store is a small expiring key/value abstraction for process-wide
// security state. Memory serves a single instance; Redis is shared across
// instances.
package store

import (
	"context"
	"time"
)

type Store interface {
	// Incr adds one to key and returns the new value. The TTL is applied only
	// when the key is created, so the window runs from the first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Get returns the value and its remaining TTL (0 when the key has none).
	Get(ctx context.Context, key string) (string, time.Duration, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}
