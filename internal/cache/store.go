package cache

import (
	"context"
	"time"
)

// Store is the minimal key-value surface the cache layer needs. The redis
// implementation backs production; the in-memory implementation backs tests
// and deployments without a cache node.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	HIncrBy(ctx context.Context, key, field string, incr int64) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// ErrMiss is returned by Get when the key is absent or expired.
type missError struct{}

func (missError) Error() string { return "cache: miss" }

var ErrMiss error = missError{}
