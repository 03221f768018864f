package congestion

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
)

// CachedForecaster wraps a Forecaster with an in-memory LRU cache keyed by
// (facility, weekday, hour). Reference data is immutable for the life of the
// process, so entries never go stale.
type CachedForecaster struct {
	inner   Forecaster
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedForecaster creates a cache decorator around a forecaster.
func NewCachedForecaster(inner Forecaster, maxEntries int, metrics *observability.Metrics) *CachedForecaster {
	return &CachedForecaster{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedForecaster) Forecast(ctx context.Context, facilityID string, weekday, hour int) (float64, error) {
	key := fmt.Sprintf("%s|%d|%d", domain.NormalizeFacilityID(facilityID), weekday, hour)
	if v, ok := c.cache.get(key); ok {
		c.metrics.PredictionCache.WithLabelValues("hit").Inc()
		return v, nil
	}
	c.metrics.PredictionCache.WithLabelValues("miss").Inc()

	v, err := c.inner.Forecast(ctx, facilityID, weekday, hour)
	if err != nil {
		// Failures are retried on the next request.
		return 0, err
	}
	c.cache.put(key, v)
	return v, nil
}

// Len returns the number of cached predictions.
func (c *CachedForecaster) Len() int {
	return c.cache.len()
}

// lruCache maps slot keys to predicted congestion. Entries form a list
// ordered by last access; past maxEntries the oldest is dropped. Safe for
// concurrent use.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	newest     *entry
	oldest     *entry
}

type entry struct {
	key   string
	value float64
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.newest {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.newest
	e.prev = nil
	if c.newest != nil {
		c.newest.prev = e
	}
	c.newest = e
	if c.oldest == nil {
		c.oldest = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.newest = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.oldest = e.prev
	}
}

func (c *lruCache) evictOldest() {
	if c.oldest == nil {
		return
	}
	delete(c.entries, c.oldest.key)
	c.remove(c.oldest)
}
