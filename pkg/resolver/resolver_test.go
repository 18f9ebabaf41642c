package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustcore/pkg/did"
)

type countingDriver struct {
	calls  int32
	result *did.ResolutionResult
	delay  time.Duration
}

func (d *countingDriver) Resolve(ctx context.Context, _ string, _ did.ResolutionOptions) (*did.ResolutionResult, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.result, nil
}

func TestResolver_MethodNotSupported(t *testing.T) {
	r := New()
	result, err := r.Resolve(context.Background(), "did:unknown:abc", ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, did.ErrorMethodNotSupported, result.ResolutionMetadata.Error)
}

func TestResolver_InvalidDidOnMalformedInput(t *testing.T) {
	r := New()
	result, err := r.Resolve(context.Background(), "not-a-did", ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, did.ErrorInvalidDID, result.ResolutionMetadata.Error)
}

func TestResolver_DispatchesByMethod(t *testing.T) {
	ok := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc"}}
	driver := &countingDriver{result: ok}
	r := New()
	r.Register("key", driver)

	result, err := r.Resolve(context.Background(), "did:key:abc", ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "did:key:abc", result.Document.ID)
	assert.EqualValues(t, 1, driver.calls)
}

func TestResolver_CachesSuccessfulResolution(t *testing.T) {
	ok := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc"}}
	driver := &countingDriver{result: ok}
	cache := NewCache(CacheConfig{})
	defer cache.Stop()

	r := New(WithCache(cache))
	r.Register("key", driver)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "did:key:abc", ResolveOptions{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, driver.calls)
}

func TestResolver_ForceRefreshBypassesCache(t *testing.T) {
	ok := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc"}}
	driver := &countingDriver{result: ok}
	cache := NewCache(CacheConfig{})
	defer cache.Stop()

	r := New(WithCache(cache))
	r.Register("key", driver)

	_, err := r.Resolve(context.Background(), "did:key:abc", ResolveOptions{})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "did:key:abc", ResolveOptions{ForceRefresh: true})
	require.NoError(t, err)

	assert.EqualValues(t, 2, driver.calls)
}

// sequencedDriver returns a different document per call, so a test can
// tell which call's result ended up cached.
type sequencedDriver struct {
	calls   int32
	results []*did.ResolutionResult
}

func (d *sequencedDriver) Resolve(_ context.Context, _ string, _ did.ResolutionOptions) (*did.ResolutionResult, error) {
	i := atomic.AddInt32(&d.calls, 1) - 1
	return d.results[i], nil
}

func TestResolver_ForceRefreshDoesNotUpdateSharedCacheEntry(t *testing.T) {
	first := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc", Controller: "v1"}}
	second := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc", Controller: "v2"}}
	driver := &sequencedDriver{results: []*did.ResolutionResult{first, second}}
	cache := NewCache(CacheConfig{})
	defer cache.Stop()

	r := New(WithCache(cache))
	r.Register("key", driver)

	result, err := r.Resolve(context.Background(), "did:key:abc", ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, result)

	result, err = r.Resolve(context.Background(), "did:key:abc", ResolveOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, second, result)

	result, ok := cache.Get("did:key:abc")
	require.True(t, ok)
	assert.Equal(t, first, result, "a forced refresh must not overwrite the entry other callers see")
}

func TestResolver_ConcurrentResolutionsOfSameDIDCoalesce(t *testing.T) {
	ok := &did.ResolutionResult{Document: &did.Document{ID: "did:key:abc"}}
	driver := &countingDriver{result: ok, delay: 50 * time.Millisecond}
	r := New()
	r.Register("key", driver)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "did:key:abc", ResolveOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, driver.calls)
}

func TestResolver_NetworkErrorNotCached(t *testing.T) {
	errResult := &did.ResolutionResult{ResolutionMetadata: did.ResolutionMetadata{Error: did.ErrorNetworkError}}
	driver := &countingDriver{result: errResult}
	cache := NewCache(CacheConfig{})
	defer cache.Stop()

	r := New(WithCache(cache))
	r.Register("web", driver)

	_, err := r.Resolve(context.Background(), "did:web:example.com", ResolveOptions{})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "did:web:example.com", ResolveOptions{})
	require.NoError(t, err)

	assert.EqualValues(t, 2, driver.calls)
}
