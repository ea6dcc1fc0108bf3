package collector

import (
	"context"
	"time"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/cache"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

// CachingCollector serves repeated requests for the same fund and date from a TTL cache.
// Concurrent requests for one key share a single fetch.
type CachingCollector struct {
	next  Collector
	cache *cache.Cache[domain.HoldingSnapshot]
}

// NewCachingCollector wraps next with a cache whose entries live for ttl.
func NewCachingCollector(next Collector, ttl time.Duration) *CachingCollector {
	return &CachingCollector{next: next, cache: cache.New[domain.HoldingSnapshot](ttl)}
}

// Collect returns a cached snapshot or delegates to the wrapped collector.
func (c *CachingCollector) Collect(ctx context.Context, fund domain.Fund, on date.Date) (domain.HoldingSnapshot, error) {
	key := fund.ID + "/" + on.String()
	snapshot, err := c.cache.GetOrLoad(ctx, key, func(ctx context.Context) (domain.HoldingSnapshot, error) {
		return c.next.Collect(ctx, fund, on)
	})
	if err != nil {
		return domain.HoldingSnapshot{}, err
	}
	return snapshot.Clone(), nil
}

// Invalidate forgets the cached snapshot of a fund and date.
func (c *CachingCollector) Invalidate(fundID string, on date.Date) {
	c.cache.Invalidate(fundID + "/" + on.String())
}
