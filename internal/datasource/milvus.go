package datasource

import (
	"context"
	"fmt"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
)

func init() {
	Register("milvus", func() Datasource { return &MilvusDatasource{} })
}

// MilvusDatasource wraps a Milvus gRPC client (spec §4.C1 vector category).
type MilvusDatasource struct {
	base
	client milvusclient.Client
}

func (d *MilvusDatasource) Name() string { return "milvus" }

func (d *MilvusDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "address", "") == "" {
		return NewError("milvus", FailureConfigInvalid, fmt.Errorf("address is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *MilvusDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	client, err := milvusclient.NewGrpcClient(ctx, stringField(d.cfg, "address", ""))
	if err != nil {
		return NewError("milvus", FailureConnectionFailed, err)
	}

	d.client = client
	return nil
}

func (d *MilvusDatasource) HealthCheck(ctx context.Context) bool {
	if d.client == nil {
		return false
	}
	_, err := d.client.ListCollections(ctx)
	return err == nil
}

func (d *MilvusDatasource) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *MilvusDatasource) CacheKey() string {
	return fmt.Sprintf("milvus:%s", stringField(d.cfg, "address", ""))
}

func (d *MilvusDatasource) Client() interface{} { return d.client }
