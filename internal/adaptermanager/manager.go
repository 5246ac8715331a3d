// Package adaptermanager owns the live catalog of adapters and runs the
// reload algorithm described for the hot-reload engine: it classifies each
// adapter's change against its previous descriptor, acquires or releases
// exactly the datasource/provider dependencies the change implies, and
// swaps the live map under a short-held write lock so in-flight requests
// keep running against the handles they already resolved.
//
// Grounded on the teacher's alert-routing manager (the component that owned
// a live, named set of routing rules and reconciled it against reloaded
// config) generalized here to adapters, datasources and providers.
package adaptermanager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/orbit-project/orbit/internal/adapter"
	"github.com/orbit-project/orbit/internal/config"
	"github.com/orbit-project/orbit/internal/datasource"
	"github.com/orbit-project/orbit/internal/providerfactory"
)

// State is the lifecycle state of a LiveAdapter (spec §3).
type State string

const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
	StateDraining State = "draining"
)

// LiveAdapter is a materialized, usable adapter: a descriptor plus the
// shared handles it resolved. It is exclusively owned by the Manager; a
// request holds a borrowed pointer obtained from Get.
type LiveAdapter struct {
	Descriptor *adapter.Descriptor
	State      State

	Datasource     datasource.Datasource
	datasourceName string // implementation name, needed to call Release

	InferenceHandle *providerfactory.Handle
	EmbeddingHandle *providerfactory.Handle
	RerankerHandle  *providerfactory.Handle
	VisionHandle    *providerfactory.Handle
}

// ErrNotFound is returned by Get and by Reload(name) when name names no
// adapter in either the live or the freshly loaded catalog.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("adaptermanager: no adapter named %q", e.Name) }

// ErrDisabled is returned by Get when the adapter exists but is disabled.
type ErrDisabled struct{ Name string }

func (e *ErrDisabled) Error() string { return fmt.Sprintf("adaptermanager: adapter %q is disabled", e.Name) }

// FailedAdapter records one adapter whose reload step failed; the adapter
// is left untouched (old version stays live if present) and the rest of
// the batch proceeds (spec §4.C5 "per-adapter failure isolation").
type FailedAdapter struct {
	Name   string
	Reason string
}

// Summary is the result of LoadAll or Reload (spec §6 admin endpoint
// response shape).
type Summary struct {
	Added     int
	Removed   int
	Updated   int
	Enabled   int
	Disabled  int
	Unchanged int
	Total     int
	Failed    []FailedAdapter
}

func (s *Summary) logLine() string {
	return fmt.Sprintf("Adapter reload complete: added=%d, removed=%d, updated=%d, unchanged=%d, total=%d",
		s.Added, s.Removed, s.Updated, s.Unchanged, s.Total)
}

// Manager owns live, keyed by adapter name, under a readers-writer lock:
// reads (the request path, via Get) never block each other; writes
// (reload) are exclusive but brief, touching only the map itself (spec §5).
type Manager struct {
	mu   sync.RWMutex
	live map[string]*LiveAdapter

	cfgMu sync.RWMutex
	cfg   *config.Config

	registry  *datasource.Registry
	providers *providerfactory.Factory
	logger    *slog.Logger
}

// New builds an empty manager. Call LoadAll to populate it at startup.
func New(registry *datasource.Registry, providers *providerfactory.Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		live:      make(map[string]*LiveAdapter),
		registry:  registry,
		providers: providers,
		logger:    logger,
	}
}

// Get returns the currently live adapter for name, or ErrNotFound /
// ErrDisabled. The returned pointer is a stable snapshot: a concurrent
// reload never mutates it, only replaces the manager's map entry.
func (m *Manager) Get(name string) (*LiveAdapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	la, ok := m.live[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}
	if la.State != StateActive {
		return nil, &ErrDisabled{Name: name}
	}
	return la, nil
}

// List returns every adapter name currently tracked (active or disabled
// stub), sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.live))
	for name := range m.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadAll populates the manager from scratch: every enabled descriptor is
// acquired and brought live, every disabled one recorded as a stub. This is
// Reload against an empty prior catalog.
func (m *Manager) LoadAll(ctx context.Context, cfg *config.Config) (*Summary, error) {
	return m.Reload(ctx, cfg, "")
}

// Reload reconciles the live catalog against a freshly loaded config. If
// name is non-empty, only that adapter is reconciled; otherwise the whole
// catalog is (spec §4.C5 Reload algorithm).
//
// A catalog parse failure aborts the reload entirely and leaves the live
// state untouched. A per-adapter failure is isolated: it is recorded in the
// summary's Failed list and does not affect any other adapter in the batch.
func (m *Manager) Reload(ctx context.Context, cfg *config.Config, name string) (*Summary, error) {
	descriptors, err := adapter.LoadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("adaptermanager: catalog parse failed, reload aborted: %w", err)
	}
	newCatalog := adapter.ToCatalog(descriptors)
	m.providers.UpdateConfig(cfg)
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()

	m.mu.RLock()
	oldCatalog := make(adapter.Catalog, len(m.live))
	for n, la := range m.live {
		oldCatalog[n] = la.Descriptor
	}
	m.mu.RUnlock()

	var names []string
	if name != "" {
		if _, oldOK := oldCatalog[name]; !oldOK {
			if _, newOK := newCatalog[name]; !newOK {
				return nil, &ErrNotFound{Name: name}
			}
		}
		names = []string{name}
	} else {
		seen := make(map[string]bool, len(oldCatalog)+len(newCatalog))
		for n := range oldCatalog {
			seen[n] = true
		}
		for n := range newCatalog {
			seen[n] = true
		}
		names = make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
	}

	summary := &Summary{}
	var pendingReleases []func(context.Context)

	for _, n := range names {
		old := oldCatalog[n]
		newD := newCatalog[n]
		cls := adapter.Classify(old, newD)

		release, err := m.applyOne(ctx, n, old, newD, cls, summary)
		if err != nil {
			summary.Failed = append(summary.Failed, FailedAdapter{Name: n, Reason: err.Error()})
			continue
		}
		if release != nil {
			pendingReleases = append(pendingReleases, release)
		}
	}

	// Releases run only after every addition/update in this batch has
	// already acquired its resources, so a datasource shared by an old and
	// new descriptor is never closed and immediately reopened (spec §4.C5
	// "ordering within a single reload").
	for _, release := range pendingReleases {
		release(ctx)
	}

	summary.Total = len(m.List())
	m.logger.Info(summary.logLine())
	return summary, nil
}

// applyOne dispatches a single adapter's classified action. It returns an
// optional release thunk to run after the whole batch has acquired its new
// resources, per the ordering guarantee above.
func (m *Manager) applyOne(ctx context.Context, name string, old, newD *adapter.Descriptor, cls adapter.Action, summary *Summary) (func(context.Context), error) {
	switch cls {
	case adapter.ActionAdd:
		if !newD.Enabled {
			m.swap(name, &LiveAdapter{Descriptor: newD, State: StateDisabled})
			m.logger.Info(fmt.Sprintf("Added disabled adapter '%s'", name))
			summary.Added++
			return nil, nil
		}
		la, err := m.acquire(ctx, newD)
		if err != nil {
			return nil, err
		}
		m.swap(name, la)
		m.logger.Info(fmt.Sprintf("Reloaded adapter '%s'", name))
		m.logPreload(name, la)
		summary.Added++
		return nil, nil

	case adapter.ActionRemove:
		m.mu.Lock()
		prev := m.live[name]
		delete(m.live, name)
		m.mu.Unlock()
		summary.Removed++
		if prev == nil {
			return nil, nil
		}
		return func(c context.Context) { m.releaseAll(c, name, prev) }, nil

	case adapter.ActionDisable:
		m.mu.Lock()
		prev := m.live[name]
		m.live[name] = &LiveAdapter{Descriptor: newD, State: StateDisabled}
		m.mu.Unlock()
		m.logger.Info(fmt.Sprintf("Disabled adapter '%s'", name))
		summary.Disabled++
		if prev == nil {
			return nil, nil
		}
		return func(c context.Context) { m.releaseAll(c, name, prev) }, nil

	case adapter.ActionEnable:
		la, err := m.acquire(ctx, newD)
		if err != nil {
			return nil, err
		}
		m.swap(name, la)
		m.logger.Info(fmt.Sprintf("Reloaded adapter '%s'", name))
		m.logPreload(name, la)
		summary.Enabled++
		return nil, nil

	case adapter.ActionNoChange:
		m.logger.Info(fmt.Sprintf("Unchanged adapter '%s'", name))
		summary.Unchanged++
		return nil, nil

	case adapter.ActionUpdate:
		return m.applyUpdate(ctx, name, old, newD, summary)

	default:
		return nil, fmt.Errorf("unknown classification %q", cls)
	}
}

// applyUpdate handles Action Update: it determines exactly which dependency
// categories the diff affects, acquires only those, swaps the descriptor
// (and any newly acquired handles) into place, and schedules release of
// whatever the update replaced (spec §4.C5 "cache-invalidation precision is
// a hard requirement").
func (m *Manager) applyUpdate(ctx context.Context, name string, old, newD *adapter.Descriptor, summary *Summary) (func(context.Context), error) {
	diff := adapter.Diff(old, newD)

	if !newD.Enabled {
		// Both sides disabled: only the stub's descriptor changes; no
		// dependency is acquired and the adapter stays unservable.
		m.swap(name, &LiveAdapter{Descriptor: newD, State: StateDisabled})
		m.logger.Info(diff.ChangeSummary(name))
		summary.Updated++
		return nil, nil
	}

	m.mu.RLock()
	prev := m.live[name]
	m.mu.RUnlock()

	la := &LiveAdapter{Descriptor: newD, State: StateActive}
	var cleared []string
	var releases []func(context.Context)

	if diff.Has("datasource_ref") {
		if prev != nil && prev.Datasource != nil {
			cacheKey := prev.Datasource.CacheKey()
			dsName := prev.datasourceName
			releases = append(releases, func(c context.Context) { m.registry.Release(c, dsName, cacheKey) })
		}
		ds, dsName, err := m.acquireDatasource(ctx, newD)
		if err != nil {
			return nil, err
		}
		la.Datasource = ds
		la.datasourceName = dsName
	} else if prev != nil {
		la.Datasource = prev.Datasource
		la.datasourceName = prev.datasourceName
	}

	if diff.Has("inference_provider") || diff.Has("model") {
		evicted := false
		if prev != nil && prev.InferenceHandle != nil {
			evicted = m.providers.Release(providerfactory.KindInference, prev.InferenceHandle.ProviderName, prev.InferenceHandle.Model)
		}
		h, err := m.acquireProvider(ctx, providerfactory.KindInference, newD.InferenceProvider, newD.Model)
		if err != nil {
			return nil, err
		}
		la.InferenceHandle = h
		if h != nil && evicted {
			cleared = append(cleared, "provider:"+h.ProviderName)
		}
	} else if prev != nil {
		la.InferenceHandle = prev.InferenceHandle
	}

	if diff.Has("embedding_provider") {
		evicted := false
		if prev != nil && prev.EmbeddingHandle != nil {
			evicted = m.providers.Release(providerfactory.KindEmbedding, prev.EmbeddingHandle.ProviderName, prev.EmbeddingHandle.Model)
		}
		h, err := m.acquireProvider(ctx, providerfactory.KindEmbedding, newD.EmbeddingProvider, newD.Model)
		if err != nil {
			return nil, err
		}
		la.EmbeddingHandle = h
		if h != nil && evicted {
			cleared = append(cleared, "embedding:"+h.ProviderName)
		}
	} else if prev != nil {
		la.EmbeddingHandle = prev.EmbeddingHandle
	}

	if diff.Has("reranker_provider") {
		evicted := false
		if prev != nil && prev.RerankerHandle != nil {
			evicted = m.providers.Release(providerfactory.KindReranker, prev.RerankerHandle.ProviderName, prev.RerankerHandle.Model)
		}
		h, err := m.acquireProvider(ctx, providerfactory.KindReranker, newD.RerankerProvider, newD.Model)
		if err != nil {
			return nil, err
		}
		la.RerankerHandle = h
		if h != nil && evicted {
			cleared = append(cleared, "reranker:"+h.ProviderName)
		}
	} else if prev != nil {
		la.RerankerHandle = prev.RerankerHandle
	}

	if diff.Has("vision_provider") {
		evicted := false
		if prev != nil && prev.VisionHandle != nil {
			evicted = m.providers.Release(providerfactory.KindVision, prev.VisionHandle.ProviderName, prev.VisionHandle.Model)
		}
		h, err := m.acquireProvider(ctx, providerfactory.KindVision, newD.VisionProvider, newD.Model)
		if err != nil {
			return nil, err
		}
		la.VisionHandle = h
		if h != nil && evicted {
			cleared = append(cleared, "vision:"+h.ProviderName)
		}
	} else if prev != nil {
		la.VisionHandle = prev.VisionHandle
	}

	m.swap(name, la)
	m.logger.Info(fmt.Sprintf("Reloaded adapter '%s'", name))
	m.logger.Info(diff.ChangeSummary(name))

	if len(cleared) > 0 {
		m.logger.Info(fmt.Sprintf("Cleared dependency caches for adapter '%s': %s", name, joinComma(cleared)))
		m.logPreload(name, la)
	}

	summary.Updated++

	if len(releases) == 0 {
		return nil, nil
	}
	return func(c context.Context) {
		for _, r := range releases {
			r(c)
		}
	}, nil
}

// acquire resolves every dependency an enabled descriptor names: its
// datasource (if any) and its four possible provider kinds.
func (m *Manager) acquire(ctx context.Context, d *adapter.Descriptor) (*LiveAdapter, error) {
	la := &LiveAdapter{Descriptor: d, State: StateActive}

	if d.DatasourceRef != "" {
		ds, dsName, err := m.acquireDatasource(ctx, d)
		if err != nil {
			return nil, err
		}
		la.Datasource = ds
		la.datasourceName = dsName
	}

	h, err := m.acquireProvider(ctx, providerfactory.KindInference, d.InferenceProvider, d.Model)
	if err != nil {
		return nil, err
	}
	la.InferenceHandle = h

	if h, err = m.acquireProvider(ctx, providerfactory.KindEmbedding, d.EmbeddingProvider, d.Model); err != nil {
		return nil, err
	}
	la.EmbeddingHandle = h

	if h, err = m.acquireProvider(ctx, providerfactory.KindReranker, d.RerankerProvider, d.Model); err != nil {
		return nil, err
	}
	la.RerankerHandle = h

	if h, err = m.acquireProvider(ctx, providerfactory.KindVision, d.VisionProvider, d.Model); err != nil {
		return nil, err
	}
	la.VisionHandle = h

	return la, nil
}

func (m *Manager) acquireDatasource(ctx context.Context, d *adapter.Descriptor) (datasource.Datasource, string, error) {
	m.cfgMu.RLock()
	dsCfg, ok := m.cfg.Datasources[d.DatasourceRef]
	m.cfgMu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("adapter %q: unknown datasource_ref %q", d.Name, d.DatasourceRef)
	}

	fields := make(map[string]interface{}, len(dsCfg.Extra)+1)
	for k, v := range dsCfg.Extra {
		fields[k] = v
	}
	fields["driver"] = dsCfg.Driver

	ds, err := m.registry.GetOrCreate(ctx, dsCfg.Driver, fields)
	if err != nil {
		return nil, "", fmt.Errorf("adapter %q: datasource %q: %w", d.Name, d.DatasourceRef, err)
	}
	return ds, dsCfg.Driver, nil
}

// acquireProvider is a no-op (nil, nil) when providerName is empty: not
// every adapter names every provider kind.
func (m *Manager) acquireProvider(ctx context.Context, kind providerfactory.Kind, providerName, model string) (*providerfactory.Handle, error) {
	if providerName == "" {
		return nil, nil
	}
	h, err := m.providers.GetOrCreate(ctx, kind, providerName, model)
	if err != nil {
		return nil, fmt.Errorf("%s provider %q: %w", kind, providerName, err)
	}
	return h, nil
}

// release drops the datasource reference a removed or disabled LiveAdapter
// held.
func (m *Manager) release(ctx context.Context, name string, la *LiveAdapter) {
	if la == nil || la.Datasource == nil {
		return
	}
	cacheKey := la.Datasource.CacheKey()
	if err := m.registry.Release(ctx, la.datasourceName, cacheKey); err != nil {
		m.logger.Warn("datasource release failed", "adapter", name, "error", err)
	}
}

// releaseAll drops every resource a removed or disabled LiveAdapter held:
// its datasource reference and one reference per provider handle it was
// holding. A provider category is reported as cleared only when this
// release was that handle's last remaining holder — a provider another
// live adapter still names stays cached (spec §6 log contract "only
// categories actually cleared"; spec §4.C5 Remove/Disable "release
// datasource + providers (decrements refcounts)").
func (m *Manager) releaseAll(ctx context.Context, name string, la *LiveAdapter) {
	m.release(ctx, name, la)
	if la == nil {
		return
	}

	var cleared []string
	if la.InferenceHandle != nil && m.providers.Release(providerfactory.KindInference, la.InferenceHandle.ProviderName, la.InferenceHandle.Model) {
		cleared = append(cleared, "provider:"+la.InferenceHandle.ProviderName)
	}
	if la.EmbeddingHandle != nil && m.providers.Release(providerfactory.KindEmbedding, la.EmbeddingHandle.ProviderName, la.EmbeddingHandle.Model) {
		cleared = append(cleared, "embedding:"+la.EmbeddingHandle.ProviderName)
	}
	if la.RerankerHandle != nil && m.providers.Release(providerfactory.KindReranker, la.RerankerHandle.ProviderName, la.RerankerHandle.Model) {
		cleared = append(cleared, "reranker:"+la.RerankerHandle.ProviderName)
	}
	if la.VisionHandle != nil && m.providers.Release(providerfactory.KindVision, la.VisionHandle.ProviderName, la.VisionHandle.Model) {
		cleared = append(cleared, "vision:"+la.VisionHandle.ProviderName)
	}
	if len(cleared) == 0 {
		return
	}
	m.logger.Info(fmt.Sprintf("Cleared dependency caches for adapter '%s': %s", name, joinComma(cleared)))
}

func (m *Manager) swap(name string, la *LiveAdapter) {
	m.mu.Lock()
	m.live[name] = la
	m.mu.Unlock()
}

func (m *Manager) logPreload(name string, la *LiveAdapter) {
	if la.InferenceHandle == nil {
		return
	}
	if la.InferenceHandle.Model != "" {
		m.logger.Info(fmt.Sprintf("Preloaded inference provider for adapter '%s' with model override '%s'", name, la.InferenceHandle.Model))
		return
	}
	m.logger.Info(fmt.Sprintf("Preloaded inference provider for adapter '%s'", name))
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
