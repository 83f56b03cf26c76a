// Package store defines the key-value contract used by the caching counter
// and provides Redis and in-memory backends for it.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key does not exist or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidTTL is returned by SetEx for a non-positive expiration.
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// Store is the narrow set of key-value primitives the caching counter needs.
// Each method must be atomic on its own; nothing is assumed across calls.
type Store interface {
	// Incr increments the integer at key by one, creating it at 1 if absent,
	// and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetEx stores value at key, expiring after ttl.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}
