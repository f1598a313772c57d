// Package cache stores rendered API responses for a bounded time.
package cache

import (
	"context"
	"time"
)

// Store abstracts the response cache so the HTTP layer does not care where entries live.
type Store interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl, replacing any previous entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key if present.
	Delete(ctx context.Context, key string) error
	// Flush removes every entry owned by the store.
	Flush(ctx context.Context) error
}
