package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// entry is one live, shared datasource instance plus its refcount.
type entry struct {
	mu       sync.Mutex
	instance Datasource
	refcount int
}

// Registry is the process-wide, reference-counted pool of datasource
// handles (spec §4.C2). GetOrCreate and Release are serialized per cache
// key; different keys proceed concurrently.
type Registry struct {
	discoverOnce sync.Once
	discovered   []string

	mu      sync.Mutex // protects the keys map and per-key entry creation
	byKey   map[string]*entry
	logger  *slog.Logger
	metrics Metrics
}

// Metrics is the subset of Prometheus instrumentation the registry drives.
// A nil Metrics is valid; every method becomes a no-op.
type Metrics interface {
	DatasourceAcquired(name string)
	DatasourceReleased(name string)
	DatasourceClosed(name string)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, metrics Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byKey:   make(map[string]*entry),
		logger:  logger,
		metrics: metrics,
	}
}

// Discover enumerates registered implementations once; subsequent calls are
// a no-op guarded by sync.Once (spec §4.C2 "done once; guarded against
// races").
func (r *Registry) Discover() []string {
	r.discoverOnce.Do(func() {
		r.discovered = Available()
		r.logger.Info("datasource implementations discovered", "count", len(r.discovered), "names", r.discovered)
	})
	return r.discovered
}

// ErrNotFound is returned when no implementation is registered under the
// requested name.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("datasource: no implementation named %q", e.Name) }

// GetOrCreate resolves a datasource by implementation name and config. If a
// live entry already shares the candidate's CacheKey, its refcount is
// incremented and the candidate is discarded without ever being
// initialized. Otherwise the candidate is stored and initialized.
func (r *Registry) GetOrCreate(ctx context.Context, name string, cfg map[string]interface{}) (Datasource, error) {
	r.Discover()

	ctor, ok := constructors[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}

	candidate := ctor()
	if err := candidate.Configure(cfg); err != nil {
		return nil, err
	}
	key := candidate.CacheKey()

	r.mu.Lock()
	e, exists := r.byKey[key]
	if !exists {
		e = &entry{instance: candidate, refcount: 0}
		r.byKey[key] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if exists {
		// Another instance already backs this cache key: the candidate is
		// discarded without ever being initialized (spec §4.C2).
		e.refcount++
		r.report(name, r.metricsAcquired)
		return e.instance, nil
	}

	if err := candidate.Initialize(ctx); err != nil {
		r.mu.Lock()
		delete(r.byKey, key)
		r.mu.Unlock()
		return nil, err
	}
	e.refcount++
	r.report(name, r.metricsAcquired)
	return e.instance, nil
}

// Release decrements the refcount for the handle previously returned for
// cacheKey; at zero it closes and drops the entry. Idempotent per handle:
// releasing more times than acquired is a no-op once the count reaches
// zero.
func (r *Registry) Release(ctx context.Context, name, cacheKey string) error {
	r.mu.Lock()
	e, ok := r.byKey[cacheKey]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refcount <= 0 {
		return nil
	}
	e.refcount--
	r.report(name, r.metricsReleased)

	if e.refcount == 0 {
		r.mu.Lock()
		delete(r.byKey, cacheKey)
		r.mu.Unlock()

		if err := e.instance.Close(ctx); err != nil {
			return err
		}
		r.report(name, r.metricsClosed)
	}
	return nil
}

// Refcount returns the current refcount for a cache key, 0 if unknown.
// Exported for tests that assert on invariant "for all datasources d with
// refcount n>=1, d.Close has not been called".
func (r *Registry) Refcount(cacheKey string) int {
	r.mu.Lock()
	e, ok := r.byKey[cacheKey]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refcount
}

func (r *Registry) report(name string, fn func(string)) {
	if r.metrics == nil {
		return
	}
	fn(name)
}

func (r *Registry) metricsAcquired(name string) { r.metrics.DatasourceAcquired(name) }
func (r *Registry) metricsReleased(name string) { r.metrics.DatasourceReleased(name) }
func (r *Registry) metricsClosed(name string)   { r.metrics.DatasourceClosed(name) }
