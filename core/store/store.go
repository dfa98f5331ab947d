// Package store defines the key-value contract the broker persists its
// state through. Implementations live under infra/.
package store

import (
	"context"
	"time"
)

// KeyValueStore is a Redis-shaped key-value store supporting hashes, lists
// and keys with a time to live. Every call honours ctx cancellation. Failures
// to reach the backend are reported as ErrUnavailable.
type KeyValueStore interface {
	// SetHash sets one field of the hash at key.
	SetHash(ctx context.Context, key, field, value string) error
	// GetAllHash returns every field of the hash at key. A missing key yields an
	// empty map and no error.
	GetAllHash(ctx context.Context, key string) (map[string]string, error)
	// SetWithTTL stores value at key, replacing any previous value and expiry.
	// A zero ttl stores the key without expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value at key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// ListPrepend pushes value at the head of the list at key.
	ListPrepend(ctx context.Context, key, value string) error
	// ListTrim keeps the first maxLen elements of the list at key. A maxLen
	// of zero or less removes the list.
	ListTrim(ctx context.Context, key string, maxLen int64) error
	// ListRange returns the elements between start and stop inclusive;
	// negative indices count from the tail. A missing key yields an empty
	// slice.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListLen returns the length of the list at key.
	ListLen(ctx context.Context, key string) (int64, error)
	// KeysMatching returns the keys matching a glob pattern.
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}
