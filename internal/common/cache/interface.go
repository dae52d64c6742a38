package cache

import (
	"context"
	"time"
)

// Cache is the key-value subset the grading service needs.
type Cache interface {
	// Get returns "" with a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; a zero ttl means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}
