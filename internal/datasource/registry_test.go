package datasource

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDatasource struct {
	name       string
	cacheKey   string
	closed     atomic.Bool
	initCalled atomic.Int32
}

func (f *fakeDatasource) Name() string { return f.name }
func (f *fakeDatasource) Configure(cfg map[string]interface{}) error {
	if key, ok := cfg["cache_key"].(string); ok {
		f.cacheKey = key
	}
	return nil
}
func (f *fakeDatasource) Initialize(ctx context.Context) error {
	f.initCalled.Add(1)
	return nil
}
func (f *fakeDatasource) HealthCheck(ctx context.Context) bool { return !f.closed.Load() }
func (f *fakeDatasource) Close(ctx context.Context) error      { f.closed.Store(true); return nil }
func (f *fakeDatasource) CacheKey() string                     { return f.cacheKey }
func (f *fakeDatasource) Client() interface{}                  { return f }

func registerFake(t *testing.T, name string) {
	t.Helper()
	Register(name, func() Datasource { return &fakeDatasource{name: name} })
	t.Cleanup(func() { delete(constructors, name) })
}

func TestRegistry_GetOrCreate_SharesSameCacheKey(t *testing.T) {
	name := fmt.Sprintf("fake-%d", 1)
	registerFake(t, name)
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	a, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k1"})
	require.NoError(t, err)
	b, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k1"})
	require.NoError(t, err)

	assert.Same(t, a, b, "two configs with the same cache key must share one instance")
}

func TestRegistry_GetOrCreate_InitializesOnlyOncePerKey(t *testing.T) {
	name := fmt.Sprintf("fake-%d", 2)
	registerFake(t, name)
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	a, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k2"})
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k2"})
	require.NoError(t, err)

	fake := a.(*fakeDatasource)
	assert.EqualValues(t, 1, fake.initCalled.Load(), "the discarded second candidate must never call Initialize")
}

func TestRegistry_ReleaseAtZeroClosesHandle(t *testing.T) {
	name := fmt.Sprintf("fake-%d", 3)
	registerFake(t, name)
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	a, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k3"})
	require.NoError(t, err)
	b, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k3"})
	require.NoError(t, err)

	require.NoError(t, reg.Release(ctx, name, "k3"))
	assert.False(t, b.(*fakeDatasource).closed.Load(), "refcount 1 remaining: must not close")

	require.NoError(t, reg.Release(ctx, name, "k3"))
	assert.True(t, a.(*fakeDatasource).closed.Load(), "refcount 0: must close")
}

func TestRegistry_GetOrCreate_UnknownNameReturnsNotFound(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_, err := reg.GetOrCreate(context.Background(), "does-not-exist", nil)
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestRegistry_AcquireReleaseSequenceReturnsToInitialState(t *testing.T) {
	name := fmt.Sprintf("fake-%d", 4)
	registerFake(t, name)
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := reg.GetOrCreate(ctx, name, map[string]interface{}{"cache_key": "k4"})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, reg.Refcount("k4"))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.Release(ctx, name, "k4"))
	}
	assert.Equal(t, 0, reg.Refcount("k4"))
}
