package datasource

import (
	"context"
	"database/sql"
	"fmt"

	go_ora "github.com/sijms/go-ora/v2"
)

func init() {
	Register("oracle", func() Datasource { return &OracleDatasource{} })
}

// OracleDatasource uses sijms/go-ora, a pure Go Oracle driver requiring no
// Oracle client libraries on the host.
type OracleDatasource struct {
	base
	db *sql.DB
}

func (d *OracleDatasource) Name() string { return "oracle" }

func (d *OracleDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "host", "") == "" {
		return NewError("oracle", FailureConfigInvalid, fmt.Errorf("host is required"))
	}
	if stringField(cfg, "service_name", "") == "" {
		return NewError("oracle", FailureConfigInvalid, fmt.Errorf("service_name is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *OracleDatasource) dsn() string {
	return go_ora.BuildUrl(
		stringField(d.cfg, "host", "localhost"),
		intField(d.cfg, "port", 1521),
		stringField(d.cfg, "service_name", ""),
		stringField(d.cfg, "username", ""),
		stringField(d.cfg, "password", ""),
		nil)
}

func (d *OracleDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	db, err := sql.Open("oracle", d.dsn())
	if err != nil {
		return NewError("oracle", FailureConfigInvalid, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return NewError("oracle", FailureConnectionFailed, err)
	}
	d.db = db
	return nil
}

func (d *OracleDatasource) HealthCheck(ctx context.Context) bool {
	return d.db != nil && d.db.PingContext(ctx) == nil
}

func (d *OracleDatasource) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *OracleDatasource) CacheKey() string {
	return fmt.Sprintf("oracle:%s:%d:%s",
		stringField(d.cfg, "host", "localhost"),
		intField(d.cfg, "port", 1521),
		stringField(d.cfg, "service_name", ""))
}

func (d *OracleDatasource) Client() interface{} { return d.db }
