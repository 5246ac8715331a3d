package datasource

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
)

func init() {
	Register("pinecone", func() Datasource { return &PineconeDatasource{} })
}

// PineconeDatasource wraps a pinecone.Client (spec §4.C1 vector category).
// The client is not bound to an index; the configured index name only
// feeds CacheKey.
type PineconeDatasource struct {
	base
	client *pinecone.Client
}

func (d *PineconeDatasource) Name() string { return "pinecone" }

func (d *PineconeDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "api_key", "") == "" {
		return NewError("pinecone", FailureConfigInvalid, fmt.Errorf("api_key is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *PineconeDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: stringField(d.cfg, "api_key", ""),
	})
	if err != nil {
		return NewError("pinecone", FailureConfigInvalid, err)
	}

	if _, err := client.ListIndexes(ctx); err != nil {
		return NewError("pinecone", FailureConnectionFailed, err)
	}

	d.client = client
	return nil
}

func (d *PineconeDatasource) HealthCheck(ctx context.Context) bool {
	if d.client == nil {
		return false
	}
	_, err := d.client.ListIndexes(ctx)
	return err == nil
}

func (d *PineconeDatasource) Close(ctx context.Context) error { return nil }

func (d *PineconeDatasource) CacheKey() string {
	return fmt.Sprintf("pinecone:%s", stringField(d.cfg, "index", ""))
}

func (d *PineconeDatasource) Client() interface{} { return d.client }
