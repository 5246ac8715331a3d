package datasource

import "sync"

// base centralizes the Configure/initialized-guard bookkeeping every
// implementation needs, mirroring the teacher's storage factory's shared
// connect/health/close skeleton (internal/storage/factory.go) generalized
// across many backend kinds instead of one.
type base struct {
	mu          sync.Mutex
	initialized bool
	cfg         map[string]interface{}
}

func (b *base) configure(cfg map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
}

func (b *base) markInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return false
	}
	b.initialized = true
	return true
}

func (b *base) isInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

func stringField(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func intField(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
