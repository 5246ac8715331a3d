package datasource

import (
	"context"
	"net/http"
	"time"
)

func init() {
	Register("http", func() Datasource { return &HTTPDatasource{} })
}

// HTTPDatasource is the clientless placeholder backend (spec §4.C1): it has
// no central client to share, so every instance uses the same cache key and
// the registry effectively pools a single no-op entry.
type HTTPDatasource struct {
	base
	client *http.Client
}

func (d *HTTPDatasource) Name() string { return "http" }

func (d *HTTPDatasource) Configure(cfg map[string]interface{}) error {
	d.configure(cfg)
	return nil
}

func (d *HTTPDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	d.client = &http.Client{Timeout: 30 * time.Second}
	return nil
}

func (d *HTTPDatasource) HealthCheck(ctx context.Context) bool { return d.isInitialized() }

func (d *HTTPDatasource) Close(ctx context.Context) error { return nil }

// CacheKey is fixed per spec §9 supplemental feature #4: "http:placeholder"
// for every instance, since there is no per-instance identity to key on.
func (d *HTTPDatasource) CacheKey() string { return "http:placeholder" }

func (d *HTTPDatasource) Client() interface{} { return d.client }
