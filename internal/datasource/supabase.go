package datasource

import (
	"context"
	"fmt"

	supabase "github.com/supabase-community/supabase-go"
)

func init() {
	Register("supabase", func() Datasource { return &SupabaseDatasource{} })
}

// SupabaseDatasource wraps the Supabase REST client rather than a raw
// Postgres connection; adapters that need the Supabase-specific row-level
// security and auth context reference this datasource instead of "postgres"
// even when pointed at the same underlying database.
type SupabaseDatasource struct {
	base
	client *supabase.Client
}

func (d *SupabaseDatasource) Name() string { return "supabase" }

func (d *SupabaseDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "project_url", "") == "" {
		return NewError("supabase", FailureConfigInvalid, fmt.Errorf("project_url is required"))
	}
	if stringField(cfg, "api_key", "") == "" {
		return NewError("supabase", FailureConfigInvalid, fmt.Errorf("api_key is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *SupabaseDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	client, err := supabase.NewClient(stringField(d.cfg, "project_url", ""), stringField(d.cfg, "api_key", ""), nil)
	if err != nil {
		return NewError("supabase", FailureConnectionFailed, err)
	}
	d.client = client
	return nil
}

// HealthCheck has no cheap no-op endpoint in the Supabase client; a
// successfully constructed client is treated as healthy since the
// underlying REST calls surface their own errors per-request.
func (d *SupabaseDatasource) HealthCheck(ctx context.Context) bool {
	return d.client != nil
}

func (d *SupabaseDatasource) Close(ctx context.Context) error { return nil }

func (d *SupabaseDatasource) CacheKey() string {
	return fmt.Sprintf("supabase:%s", stringField(d.cfg, "project_url", ""))
}

func (d *SupabaseDatasource) Client() interface{} { return d.client }
