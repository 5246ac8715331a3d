package datasource

import (
	"context"
	"fmt"

	chroma "github.com/amikos-tech/chroma-go"
)

func init() {
	Register("chroma", func() Datasource { return &ChromaDatasource{} })
}

// ChromaDatasource wraps a chroma.Client against a Chroma vector store
// instance (spec §4.C1 vector category).
type ChromaDatasource struct {
	base
	client *chroma.Client
}

func (d *ChromaDatasource) Name() string { return "chroma" }

func (d *ChromaDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "url", "") == "" {
		return NewError("chroma", FailureConfigInvalid, fmt.Errorf("url is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *ChromaDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	client, err := chroma.NewClient(stringField(d.cfg, "url", ""))
	if err != nil {
		return NewError("chroma", FailureConfigInvalid, err)
	}

	if _, err := client.Heartbeat(ctx); err != nil {
		return NewError("chroma", FailureConnectionFailed, err)
	}

	d.client = client
	return nil
}

func (d *ChromaDatasource) HealthCheck(ctx context.Context) bool {
	if d.client == nil {
		return false
	}
	_, err := d.client.Heartbeat(ctx)
	return err == nil
}

func (d *ChromaDatasource) Close(ctx context.Context) error { return nil }

func (d *ChromaDatasource) CacheKey() string {
	return fmt.Sprintf("chroma:%s", stringField(d.cfg, "url", ""))
}

func (d *ChromaDatasource) Client() interface{} { return d.client }
