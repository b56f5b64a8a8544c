// Package cache provides the key/value store injected into components that
// need state surviving a restart (the session credential, lookup caches).
//
// Eviction policy: every entry carries an optional TTL and is evicted lazily
// once expired. The memory store additionally caps its size; when full it
// drops expired entries first, then the least recently used one.
package cache

import (
	"context"
	"time"
)

// Store is the cache capability. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Persist flushes the store to durable storage when it has one.
	Persist(ctx context.Context) error
}
