package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const catalogKey = "catalog:items"

// CatalogCache caches the question catalog in Redis as one JSON value and falls
// back to a loader on cache miss. A Redis outage degrades to loading directly,
// and a failed load serves the last catalog this process saw.
type CatalogCache struct {
	client *redis.Client
	loader app.CatalogSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand

	mu       sync.RWMutex
	lastGood []domain.CatalogItem
}

func NewCatalogCache(client *redis.Client, loader app.CatalogSource, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) LoadCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	if items, ok := c.cached(ctx); ok {
		c.remember(items)
		return items, nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if items, ok := c.cached(ctx); ok {
			return items, nil
		}

		items, err := c.loader.LoadCatalog(ctx)
		if err != nil {
			if last := c.last(); last != nil {
				return last, nil
			}
			return nil, err
		}
		c.remember(items)
		if raw, err := json.Marshal(items); err == nil {
			_ = c.client.Set(ctx, catalogKey, raw, c.ttlWithJitter()).Err()
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.CatalogItem), nil
}

// Invalidate drops the cached catalog, e.g. after seeding new items.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogKey).Err()
}

func (c *CatalogCache) cached(ctx context.Context) ([]domain.CatalogItem, bool) {
	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		return nil, false
	}
	var items []domain.CatalogItem
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

func (c *CatalogCache) remember(items []domain.CatalogItem) {
	c.mu.Lock()
	c.lastGood = items
	c.mu.Unlock()
}

func (c *CatalogCache) last() []domain.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastGood
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
