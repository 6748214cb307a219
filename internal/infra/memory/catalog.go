package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// StaticCatalog serves a fixed list of catalog items (tests, demos, seeding).
type StaticCatalog struct {
	items []domain.CatalogItem
}

func NewStaticCatalog(items []domain.CatalogItem) *StaticCatalog {
	return &StaticCatalog{items: items}
}

func (c *StaticCatalog) LoadCatalog(context.Context) ([]domain.CatalogItem, error) {
	out := make([]domain.CatalogItem, len(c.items))
	copy(out, c.items)
	return out, nil
}

// CachedCatalog caches a catalog source with TTL to avoid repeated DB hits.
// A failed reload keeps serving the last catalog it loaded.
type CachedCatalog struct {
	source app.CatalogSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	items     []domain.CatalogItem
	expiresAt time.Time
}

func NewCachedCatalog(source app.CatalogSource, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedCatalog) LoadCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	if items, ok := c.cached(c.clock()); ok {
		return items, nil
	}

	result, err, _ := c.sf.Do("catalog", func() (interface{}, error) {
		now := c.clock()
		if items, ok := c.cached(now); ok {
			return items, nil
		}

		items, err := c.source.LoadCatalog(ctx)
		if err != nil {
			if stale := c.stale(); stale != nil {
				return stale, nil
			}
			return nil, err
		}

		c.mu.Lock()
		c.items = items
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items := result.([]domain.CatalogItem)
	out := make([]domain.CatalogItem, len(items))
	copy(out, items)
	return out, nil
}

func (c *CachedCatalog) cached(now time.Time) ([]domain.CatalogItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.items == nil || !c.expiresAt.After(now) {
		return nil, false
	}
	out := make([]domain.CatalogItem, len(c.items))
	copy(out, c.items)
	return out, true
}

func (c *CachedCatalog) stale() []domain.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
