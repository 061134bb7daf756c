// Package cache defines the shared store contract for Features API responses.
package cache

import (
	"context"
	"time"
)

// Store is the second tier behind the in-process LRU. Implementations
// report a miss as found=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
