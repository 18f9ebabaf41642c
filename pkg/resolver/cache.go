package resolver

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"trustcore/pkg/did"
)

// Default TTLs from spec §4.5.
const (
	DefaultPositiveTTL = 300 * time.Second
	DefaultNegativeTTL = 30 * time.Second
	DefaultCapacity    = 1024
)

// Cache is the resolver's in-memory tier, wrapping
// jellydator/ttlcache/v3 the same way dc4eu-vc's pkg/trust.TrustCache
// wraps it for trust decisions: LRU eviction via WithCapacity, entries
// stored with a per-Set TTL rather than one cache-wide TTL.
type Cache struct {
	inner        *ttlcache.Cache[string, *did.ResolutionResult]
	positiveTTL  time.Duration
	negativeTTL  time.Duration
	dist         DistCache
}

// CacheConfig tunes Cache construction.
type CacheConfig struct {
	Capacity    uint64
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	Dist        DistCache
}

// NewCache builds and starts a Cache's background expiration loop.
// Callers should call Stop when done.
func NewCache(cfg CacheConfig) *Cache {
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	positiveTTL := cfg.PositiveTTL
	if positiveTTL <= 0 {
		positiveTTL = DefaultPositiveTTL
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = DefaultNegativeTTL
	}

	inner := ttlcache.New[string, *did.ResolutionResult](
		ttlcache.WithCapacity[string, *did.ResolutionResult](capacity),
	)
	go inner.Start()

	return &Cache{inner: inner, positiveTTL: positiveTTL, negativeTTL: negativeTTL, dist: cfg.Dist}
}

// Stop halts the background expiration goroutine.
func (c *Cache) Stop() {
	c.inner.Stop()
}

// Get returns a cached result for did, checking the in-memory tier
// first and falling back to the distributed tier if configured.
func (c *Cache) Get(didStr string) (*did.ResolutionResult, bool) {
	if item := c.inner.Get(didStr); item != nil {
		return item.Value(), true
	}
	if c.dist == nil {
		return nil, false
	}
	result, ok, err := c.dist.Get(didStr)
	if err != nil || !ok {
		return nil, false
	}
	// Backfill the local tier so subsequent lookups on this node avoid
	// the distributed round trip entirely.
	if result.ResolutionMetadata.Error == did.ErrorNotFound {
		c.inner.Set(didStr, result, c.negativeTTL)
	} else {
		c.storeLocal(didStr, result)
	}
	return result, true
}

// Store caches a ResolutionResult per spec §4.5's policy: successful
// resolutions get the positive TTL, notFound gets the shorter negative
// TTL, and every other error kind is left uncached.
func (c *Cache) Store(didStr string, result *did.ResolutionResult) {
	switch {
	case result.ResolutionMetadata.Error == "":
		c.storeLocal(didStr, result)
		if c.dist != nil {
			_ = c.dist.Set(didStr, result, c.positiveTTL)
		}
	case result.ResolutionMetadata.Error == did.ErrorNotFound:
		c.inner.Set(didStr, result, c.negativeTTL)
		if c.dist != nil {
			_ = c.dist.Set(didStr, result, c.negativeTTL)
		}
	default:
		// networkError, methodNotSupported, etc. are never cached.
	}
}

func (c *Cache) storeLocal(didStr string, result *did.ResolutionResult) {
	ttl := c.positiveTTL
	if !result.DocumentMetadata.Updated.IsZero() {
		if remaining := time.Until(result.DocumentMetadata.Updated.Add(c.positiveTTL)); remaining > 0 {
			ttl = remaining
		}
	}
	c.inner.Set(didStr, result, ttl)
}

// Invalidate removes the cached entry for did from the local tier.
func (c *Cache) Invalidate(didStr string) {
	c.inner.Delete(didStr)
}

// Len reports the number of entries currently in the local tier.
func (c *Cache) Len() int {
	return c.inner.Len()
}
