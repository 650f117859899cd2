// Package cache provides the in-memory diagnosis cache: recent
// classifications keyed by signal text, each with a time-to-live.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultTTL is used when a non-positive TTL is given.
const DefaultTTL = 30 * time.Second

type entry struct {
	classification fault.Classification
	expiresAt      time.Time
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Clears    int64 `json:"clears"`
}

// Cache maps normalized signal text to its latest classification.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	stats   Stats
	now     func() time.Time
}

// New creates a cache whose Put uses ttl when given a non-positive TTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Key returns the cache key for signal text. Runs of whitespace are
// collapsed so trailing newlines and padding do not split entries.
func Key(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached classification for text. Expired entries are
// removed and reported as a miss.
func (c *Cache) Get(text string) (fault.Classification, bool) {
	key := Key(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return fault.Classification{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		return fault.Classification{}, false
	}
	c.stats.Hits++
	return e.classification, true
}

// Put stores cl for text, replacing any existing entry.
func (c *Cache) Put(text string, cl fault.Classification, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{classification: cl, expiresAt: c.now().Add(ttl)}
}

// Clear drops every entry and returns how many were removed. Clearing an
// empty cache is a no-op.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if n > 0 {
		c.entries = make(map[string]entry)
	}
	c.stats.Clears++
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	return removed
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the default time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns a copy of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
