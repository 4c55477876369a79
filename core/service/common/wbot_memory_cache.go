// Package common provides the two-tier classification result cache.
package common

import (
	"sync"
	"time"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// =============================================================================
// Memory Tier - fixed capacity, TTL, insertion-order eviction
// =============================================================================

// entryNode tracks insertion order in a doubly linked list so eviction at
// capacity is O(1).
type entryNode struct {
	key  string
	prev *entryNode
	next *entryNode
}

type memoryEntry struct {
	result    *domain.ClassificationResult
	expiresAt time.Time
	node      *entryNode
}

// MemoryCacheConfig configures the in-process tier.
type MemoryCacheConfig struct {
	MaxEntries int           // default 10000
	TTL        time.Duration // default 1 hour
	SweepEvery time.Duration // default 5 minutes; 0 disables the sweep loop

	// Now is the clock source; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// DefaultMemoryCacheConfig returns sensible defaults.
func DefaultMemoryCacheConfig() *MemoryCacheConfig {
	return &MemoryCacheConfig{
		MaxEntries: 10000,
		TTL:        time.Hour,
		SweepEvery: 5 * time.Minute,
		Now:        time.Now,
	}
}

// MemoryCache is the in-process tier of the result cache. Entries are
// immutable once written; a concurrent re-write of the same hash carries
// identical content, so last-writer-wins is safe.
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*memoryEntry
	head    *entryNode // oldest insertion (dummy)
	tail    *entryNode // newest insertion (dummy)
	max     int
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once

	hits   int64
	misses int64
}

// NewMemoryCache creates a memory cache and starts its sweep loop.
func NewMemoryCache(cfg *MemoryCacheConfig) *MemoryCache {
	if cfg == nil {
		cfg = DefaultMemoryCacheConfig()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	head := &entryNode{}
	tail := &entryNode{}
	head.next = tail
	tail.prev = head

	c := &MemoryCache{
		data:   make(map[string]*memoryEntry),
		head:   head,
		tail:   tail,
		max:    cfg.MaxEntries,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		stopCh: make(chan struct{}),
	}

	if cfg.SweepEvery > 0 {
		go c.sweepLoop(cfg.SweepEvery)
	}

	return c
}

// Get returns the cached result for a content hash, if present and fresh.
func (c *MemoryCache) Get(hash string) (*domain.ClassificationResult, bool) {
	c.mu.RLock()
	entry, ok := c.data[hash]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeLocked(hash)
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	return entry.result, true
}

// Put stores a result, refreshing the expiry if the hash already exists.
// At capacity the oldest inserted entry is evicted first.
func (c *MemoryCache) Put(hash string, result *domain.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.data[hash]; ok {
		existing.result = result
		existing.expiresAt = c.now().Add(c.ttl)
		return
	}

	if len(c.data) >= c.max {
		c.evictOldestLocked()
	}

	node := &entryNode{key: hash}
	node.prev = c.tail.prev
	node.next = c.tail
	c.tail.prev.next = node
	c.tail.prev = node

	c.data[hash] = &memoryEntry{
		result:    result,
		expiresAt: c.now().Add(c.ttl),
		node:      node,
	}
}

// Len returns the number of live entries (expired ones included until the
// next sweep).
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns hit/miss counters.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Stop terminates the sweep loop.
func (c *MemoryCache) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) removeLocked(hash string) {
	entry, ok := c.data[hash]
	if !ok {
		return
	}
	entry.node.prev.next = entry.node.next
	entry.node.next.prev = entry.node.prev
	delete(c.data, hash)
}

func (c *MemoryCache) evictOldestLocked() {
	oldest := c.head.next
	if oldest == c.tail {
		return
	}
	c.removeLocked(oldest.key)
}

func (c *MemoryCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired entries. It holds the lock for a single pass only,
// so request-path reads are never blocked longer than one eviction scan.
func (c *MemoryCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for hash, entry := range c.data {
		if now.After(entry.expiresAt) {
			c.removeLocked(hash)
		}
	}
}
