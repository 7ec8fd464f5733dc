package cache

import (
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/clock"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// TTL is the validity window of a cached reading.
const TTL = 30 * time.Second

// Cache holds at most one reading per key. Get reports only valid entries;
// an expired entry behaves exactly like an absent one.
type Cache interface {
	Get(key string) (models.Reading, bool)
	Set(key string, value models.Reading)
}

// InMemoryCache implements Cache with a mutex-guarded map. Entries record
// when they were stored and are valid while now - storedAt < ttl. Expired
// entries are removed on access.
type InMemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	data  map[string]cacheEntry
}

type cacheEntry struct {
	value    models.Reading
	storedAt time.Time
}

// NewInMemoryCache returns an empty cache using TTL. A nil clock uses the wall clock.
func NewInMemoryCache(c clock.Clock) *InMemoryCache {
	return newInMemoryCache(TTL, c)
}

func newInMemoryCache(ttl time.Duration, c clock.Clock) *InMemoryCache {
	if c == nil {
		c = clock.Real{}
	}
	return &InMemoryCache{
		ttl:   ttl,
		clock: c,
		data:  make(map[string]cacheEntry),
	}
}

// Get returns the reading for key if present and not expired.
func (c *InMemoryCache) Get(key string) (models.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Reading{}, false
	}
	if c.clock.Now().Sub(entry.storedAt) >= c.ttl {
		delete(c.data, key)
		return models.Reading{}, false
	}
	return entry.value, true
}

// Set stores value for key, replacing any previous entry.
func (c *InMemoryCache) Set(key string, value models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{value: value, storedAt: c.clock.Now()}
}

// Len returns the number of stored entries, expired ones included until
// they are next accessed.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
