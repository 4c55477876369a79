package common

import (
	"context"
	"time"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// DurableStore is the backing tier of the result cache, typically Redis.
// Keys expire server-side via the TTL passed on write.
type DurableStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TwoTierCacheConfig configures the combined cache.
type TwoTierCacheConfig struct {
	Memory     *MemoryCacheConfig
	DurableTTL time.Duration // default 24 hours
	KeyPrefix  string        // default "classify:"
}

// DefaultTwoTierCacheConfig returns sensible defaults.
func DefaultTwoTierCacheConfig() *TwoTierCacheConfig {
	return &TwoTierCacheConfig{
		Memory:     DefaultMemoryCacheConfig(),
		DurableTTL: 24 * time.Hour,
		KeyPrefix:  "classify:",
	}
}

// TwoTierCache layers the in-process memory cache over a durable store.
// Reads check memory first and backfill it on a durable hit. Writes hit
// memory synchronously; the durable write is fire-and-forget because the
// durable tier is a cache, not the source of truth — failures are logged,
// never raised.
type TwoTierCache struct {
	memory    *MemoryCache
	durable   DurableStore
	ttl       time.Duration
	keyPrefix string
	log       *logger.Logger
}

// NewTwoTierCache creates the combined cache. A nil durable store degrades
// to memory-only operation.
func NewTwoTierCache(durable DurableStore, cfg *TwoTierCacheConfig) *TwoTierCache {
	if cfg == nil {
		cfg = DefaultTwoTierCacheConfig()
	}
	if cfg.DurableTTL <= 0 {
		cfg.DurableTTL = 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "classify:"
	}

	return &TwoTierCache{
		memory:    NewMemoryCache(cfg.Memory),
		durable:   durable,
		ttl:       cfg.DurableTTL,
		keyPrefix: cfg.KeyPrefix,
		log:       logger.Default().WithField("component", "result_cache"),
	}
}

// Get looks up a classification result by content hash.
func (c *TwoTierCache) Get(ctx context.Context, hash string) (*domain.ClassificationResult, bool) {
	if result, ok := c.memory.Get(hash); ok {
		return result, true
	}

	if c.durable == nil {
		return nil, false
	}

	var result domain.ClassificationResult
	found, err := c.durable.GetJSON(ctx, c.keyPrefix+hash, &result)
	if err != nil {
		c.log.WithError(err).Warn("durable cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	// Backfill the memory tier so the next read is O(1).
	c.memory.Put(hash, &result)
	return &result, true
}

// Put writes both tiers. The durable write runs detached from the request
// context so a fast webhook ack cannot cancel it mid-flight.
func (c *TwoTierCache) Put(ctx context.Context, hash string, result *domain.ClassificationResult) {
	c.memory.Put(hash, result)

	if c.durable == nil {
		return
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.durable.SetJSON(writeCtx, c.keyPrefix+hash, result, c.ttl); err != nil {
			c.log.WithError(err).Warn("durable cache write failed")
		}
	}()
}

// Stop terminates the memory tier's sweep loop.
func (c *TwoTierCache) Stop() {
	c.memory.Stop()
}

// MemoryStats exposes memory-tier hit/miss counters for the health endpoint.
func (c *TwoTierCache) MemoryStats() (hits, misses int64, entries int) {
	hits, misses = c.memory.Stats()
	return hits, misses, c.memory.Len()
}
