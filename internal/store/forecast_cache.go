// Package store holds the in-memory forecast cache: a read-through
// accelerator in front of the weather client, never an authority.
package store

import (
	"fmt"
	"sync"
	"time"

	"glassweather/internal/weather"
)

// DefaultTTL matches the 30-minute freshness window forecast data is
// considered valid for.
const DefaultTTL = 30 * time.Minute

type cacheEntry struct {
	bundle    *weather.ForecastBundle
	fetchedAt time.Time
}

// ForecastCache caches forecast bundles keyed by rounded coordinates.
// Entries expire after the TTL and are deleted lazily on the read that
// discovers them; a max-entries cap evicts the least recently used entry
// so the map cannot grow without bound.
type ForecastCache struct {
	mu sync.Mutex

	entries map[string]*cacheEntry
	order   []string // LRU order, least recently used first

	ttl        time.Duration
	maxEntries int // 0 = unlimited

	now func() time.Time
}

// NewForecastCache creates a cache. If ttl is <= 0 the default 30 minutes is
// used; if maxEntries is <= 0 the cache is unbounded.
func NewForecastCache(ttl time.Duration, maxEntries int) *ForecastCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ForecastCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key collapses nearby coordinates onto one cache slot by rounding to four
// decimals, e.g. "37.7749,-122.4194".
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// Get returns the cached bundle for the coordinate if it is still fresh.
// An expired entry is deleted on discovery and reported as a miss.
func (c *ForecastCache) Get(lat, lon float64) (*weather.ForecastBundle, bool) {
	key := Key(lat, lon)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.touch(key)
	return entry.bundle, true
}

// Put stores (or overwrites) the bundle for the coordinate with the current
// timestamp, evicting the least recently used entry when over capacity.
func (c *ForecastCache) Put(lat, lon float64, bundle *weather.ForecastBundle) {
	key := Key(lat, lon)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		oldest := c.order[0]
		delete(c.entries, oldest)
		c.order = c.order[1:]
	}

	c.entries[key] = &cacheEntry{bundle: bundle, fetchedAt: c.now()}
	c.touch(key)
}

// Len reports the number of live entries, expired or not.
func (c *ForecastCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ForecastCache) touch(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *ForecastCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
