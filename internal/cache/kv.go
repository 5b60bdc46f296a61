// Package cache provides the durable key/value backends and the TTL-bounded
// profile cache built on them.
package cache

import (
	"context"
	"time"
)

// KV is a durable key/value store. Get returns nil, nil on a miss.
// Patterns use glob syntax with * as the only wildcard.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}
