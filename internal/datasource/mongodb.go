package datasource

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func init() {
	Register("mongodb", func() Datasource { return &MongoDatasource{} })
}

// MongoDatasource wraps a mongo.Client, the NoSQL counterpart to
// PostgresDatasource: same Configure/Initialize/ping shape, different wire
// client (spec §4.C1 NoSQL category).
type MongoDatasource struct {
	base
	client   *mongo.Client
	database *mongo.Database
}

func (d *MongoDatasource) Name() string { return "mongodb" }

func (d *MongoDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "uri", "") == "" {
		return NewError("mongodb", FailureConfigInvalid, fmt.Errorf("uri is required"))
	}
	if stringField(cfg, "database", "") == "" {
		return NewError("mongodb", FailureConfigInvalid, fmt.Errorf("database is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *MongoDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	uri := stringField(d.cfg, "uri", "")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return NewError("mongodb", FailureConfigInvalid, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return NewError("mongodb", FailureConnectionFailed, err)
	}

	d.client = client
	d.database = client.Database(stringField(d.cfg, "database", ""))
	return nil
}

func (d *MongoDatasource) HealthCheck(ctx context.Context) bool {
	if d.client == nil {
		return false
	}
	return d.client.Ping(ctx, readpref.Primary()) == nil
}

func (d *MongoDatasource) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

func (d *MongoDatasource) CacheKey() string {
	return fmt.Sprintf("mongodb:%s:%s", stringField(d.cfg, "uri", ""), stringField(d.cfg, "database", ""))
}

func (d *MongoDatasource) Client() interface{} { return d.database }
