// Package resolver implements trustcore's universal DID resolver:
// method dispatch, a layered cache (in-memory + optional distributed),
// and per-DID request coalescing.
package resolver

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"trustcore/pkg/did"
	"trustcore/pkg/errkind"
)

// Resolver dispatches DIDs by method prefix to a registered did.Driver,
// caches results, and coalesces concurrent resolutions of the same DID
// into a single driver call (spec §4.5, testable property 10).
type Resolver struct {
	mu      sync.RWMutex
	drivers map[string]did.Driver

	cache *Cache
	group singleflight.Group
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithCache attaches a Cache to the resolver. Without one, every
// resolution hits the driver directly.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// New builds a Resolver with no drivers registered; call Register for
// each method this deployment supports.
func New(opts ...Option) *Resolver {
	r := &Resolver{drivers: make(map[string]did.Driver)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a driver to a DID method name (e.g. "web", "key").
func (r *Resolver) Register(method string, driver did.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[method] = driver
}

func methodOf(d string) (string, bool) {
	parts := strings.SplitN(d, ":", 3)
	if len(parts) < 3 || parts[0] != "did" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ResolveOptions extends did.ResolutionOptions with resolver-level
// knobs. ForceRefresh bypasses the cache for this call only — it does
// not invalidate the entry for other callers (spec §4.5's ordering
// guarantee).
type ResolveOptions struct {
	did.ResolutionOptions
	ForceRefresh bool
}

// Resolve dispatches didStr to its registered driver, applying cache
// and coalescing policy.
func (r *Resolver) Resolve(ctx context.Context, didStr string, opts ResolveOptions) (*did.ResolutionResult, error) {
	method, ok := methodOf(didStr)
	if !ok {
		return &did.ResolutionResult{
			ResolutionMetadata: did.ResolutionMetadata{Error: did.ErrorInvalidDID, Message: "malformed did"},
		}, nil
	}

	r.mu.RLock()
	driver, ok := r.drivers[method]
	r.mu.RUnlock()
	if !ok {
		return &did.ResolutionResult{
			ResolutionMetadata: did.ResolutionMetadata{Error: did.ErrorMethodNotSupported, Message: "method " + method + " not registered"},
		}, nil
	}

	if r.cache != nil && !opts.ForceRefresh {
		if result, ok := r.cache.Get(didStr); ok {
			return result, nil
		}
	}

	// A forced refresh gets its own flight key and skips the cache
	// write: it must not coalesce with (and thereby short-circuit) a
	// concurrent ordinary resolution, and its result must not replace
	// the shared entry other callers are still reading — force-refresh
	// bypasses the cache for this call only, per spec §4.5.
	flightKey := didStr
	if opts.ForceRefresh {
		flightKey = "force:" + didStr
	}

	v, err, _ := r.group.Do(flightKey, func() (interface{}, error) {
		result, err := driver.Resolve(ctx, didStr, opts.ResolutionOptions)
		if err != nil {
			return nil, err
		}
		if r.cache != nil && !opts.ForceRefresh {
			r.cache.Store(didStr, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "resolver: driver failed for %s", didStr)
	}
	return v.(*did.ResolutionResult), nil
}
