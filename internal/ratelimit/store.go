// Package ratelimit enforces per-category request ceilings with a cooldown
// block, backed by a shared store that falls back to process memory.
package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of a window counter after an increment.
type Counter struct {
	Value     int64
	ExpiresAt time.Time
}

// Store is the key/value surface the limiter needs.
// Incr starts a new window of ttl when the key is absent or expired and keeps
// the existing expiry otherwise.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string, ttl time.Duration) (Counter, error)
}
