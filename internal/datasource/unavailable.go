package datasource

import (
	"context"
	"fmt"
)

func init() {
	Register("duckdb", func() Datasource { return newUnavailable("duckdb") })
	Register("athena", func() Datasource { return newUnavailable("athena") })
	Register("qdrant", func() Datasource { return newUnavailable("qdrant") })
}

// unavailable registers a backend kind the spec names (§4.C1) but for which
// no Go client library turned up anywhere in the retrieved corpus. It
// satisfies the full Datasource contract and always fails Initialize with
// DependencyMissing, exactly the behavior spec §4.C1/§7 require of an
// optional datasource whose library isn't installed: this one backend is
// unusable, the rest of the process is unaffected.
type unavailable struct {
	base
	name string
}

func newUnavailable(name string) *unavailable { return &unavailable{name: name} }

func (d *unavailable) Name() string { return d.name }

func (d *unavailable) Configure(cfg map[string]interface{}) error {
	d.configure(cfg)
	return nil
}

func (d *unavailable) Initialize(ctx context.Context) error {
	return NewError(d.name, FailureDependencyMissing, fmt.Errorf("no Go client library is vendored for %q", d.name))
}

func (d *unavailable) HealthCheck(ctx context.Context) bool { return false }

func (d *unavailable) Close(ctx context.Context) error { return nil }

func (d *unavailable) CacheKey() string { return d.name + ":unavailable" }

func (d *unavailable) Client() interface{} { return nil }
