// Package cache stores computed insights between dataset rebuilds.
package cache

import (
	"context"
	"time"
)

// Cache holds JSON-serializable values. Get reports whether dst was filled.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}
