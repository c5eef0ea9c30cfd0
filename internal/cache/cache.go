// Package cache holds analysis results keyed by image fingerprint so a
// repeated scan of the same photo is served without another provider call.
package cache

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/closetmind/stylescan/internal/models"
)

const (
	// DefaultTTL is how long a stored signal stays servable.
	DefaultTTL = 20 * time.Minute

	// DefaultCapacity bounds the entry count. Inserting past it evicts the
	// oldest-inserted entry, not the least recently read.
	DefaultCapacity = 50
)

// Fingerprint derives the cache key from an image's identity (filename or
// content hash, not the raw bytes).
func Fingerprint(identity string) string {
	hash := sha256.Sum256([]byte(identity))
	return fmt.Sprintf("%x", hash)
}

type entry struct {
	fingerprint string
	signal      *models.StyleSignal
	expiresAt   time.Time
}

// ResultCache is a bounded FIFO cache with lazy TTL expiry. Safe for
// concurrent use; a single mutex guards the map and the insertion order.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest inserted
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func New(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the cache's clock. Test hook; not safe to call once the
// cache is in use.
func (c *ResultCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the stored signal for fingerprint, or false on a miss. An
// expired entry behaves as a miss and is dropped on the way out.
func (c *ResultCache) Get(fingerprint string) (*models.StyleSignal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.remove(el)
		return nil, false
	}
	return e.signal, true
}

// Put stores a successful analysis result. Callers must never cache error
// responses; the cache has no way to tell and will happily serve them for
// the full TTL.
func (c *ResultCache) Put(fingerprint string, signal *models.StyleSignal) {
	if signal == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		c.remove(el)
	}
	for c.order.Len() >= c.capacity {
		c.remove(c.order.Front())
	}

	el := c.order.PushBack(&entry{
		fingerprint: fingerprint,
		signal:      signal,
		expiresAt:   c.now().Add(c.ttl),
	})
	c.entries[fingerprint] = el
}

// Len reports the current entry count, expired entries included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must be called with c.mu held.
func (c *ResultCache) remove(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.fingerprint)
	c.order.Remove(el)
}
