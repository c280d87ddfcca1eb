package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Well-known cache keys. Every mutating operation on a domain deletes that
// domain's keys after its store transaction commits.
const (
	KeyCarwashToday   = "carwash:transactions_today"
	KeySimracingToday = "simracing:transactions_today"
	KeyParkingToday   = "parking:transactions_today"
	KeyActivePayments = "payment:active"
)

const visitorKeyFormat = "visitor_count:%s"

// Cache is a read-through cache with explicit invalidation. It is strictly an
// optimization: every failure path degrades to running the loader.
type Cache struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Cache {
	return &Cache{
		store: store,
		log:   log.Named("cache"),
	}
}

// ReadThrough returns the cached payload for key, or runs loader and caches
// its result with the given TTL. Loader errors propagate; store errors do not.
func (c *Cache) ReadThrough(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	cached, err := c.store.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if err != ErrMiss {
		c.log.Warn("cache read failed, falling through to loader", zap.String("key", key), zap.Error(err))
	}

	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// Invalidate deletes the given keys unconditionally. Called after commit,
// never before, so a racing reader cannot repopulate a pre-commit snapshot.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// IncrVisitor bumps the visitor counter for a domain on the given day bucket.
func (c *Cache) IncrVisitor(ctx context.Context, domain string, day time.Time) {
	key := fmt.Sprintf(visitorKeyFormat, domain)
	field := day.UTC().Format("2006-01-02")
	if err := c.store.HIncrBy(ctx, key, field, 1); err != nil {
		c.log.Warn("visitor count increment failed", zap.String("domain", domain), zap.Error(err))
	}
}

// VisitorCounts returns the full day-bucket map for a domain.
func (c *Cache) VisitorCounts(ctx context.Context, domain string) (map[string]int64, error) {
	raw, err := c.store.HGetAll(ctx, fmt.Sprintf(visitorKeyFormat, domain))
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(raw))
	for field, value := range raw {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[field] = parsed
	}
	return counts, nil
}
