package analysis

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 64
	DefaultTTL        = 2 * time.Minute

	// fingerprintLen truncates the capture fingerprint inside cache
	// keys; the full hash adds nothing once title and process are in
	// the key.
	fingerprintLen = 16
)

type entry struct {
	result     string
	insertedAt time.Time
}

// Cache memoizes vision-analysis results for recently seen captures so
// repeated questions about an unchanged window skip the model call.
// Bounded size with single-oldest eviction; entries expire lazily on
// lookup.
type Cache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func NewCache(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Key builds the composite cache key for a capture.
func Key(windowTitle, processName, fingerprint string) string {
	if len(fingerprint) > fingerprintLen {
		fingerprint = fingerprint[:fingerprintLen]
	}
	return strings.Join([]string{windowTitle, processName, fingerprint}, "|")
}

// Get returns the cached result for key. Expired entries are purged
// before the lookup, so a hit is always fresh.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpired()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return e.result, true
}

// Put stores a result, evicting the single oldest entry when the cache
// is full.
func (c *Cache) Put(key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpired()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[key] = entry{result: result, insertedAt: c.now()}
}

// Len reports current occupancy (expired entries included until the
// next lookup touches them).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) purgeExpired() {
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.insertedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.insertedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
