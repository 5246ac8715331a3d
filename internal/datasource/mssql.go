package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
)

func init() {
	Register("mssql", func() Datasource { return &MSSQLDatasource{} })
}

// MSSQLDatasource talks to SQL Server via Microsoft's own Go driver.
type MSSQLDatasource struct {
	base
	db *sql.DB
}

func (d *MSSQLDatasource) Name() string { return "mssql" }

func (d *MSSQLDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "host", "") == "" {
		return NewError("mssql", FailureConfigInvalid, fmt.Errorf("host is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *MSSQLDatasource) dsn() string {
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		stringField(d.cfg, "username", "sa"),
		stringField(d.cfg, "password", ""),
		stringField(d.cfg, "host", "localhost"),
		intField(d.cfg, "port", 1433),
		stringField(d.cfg, "database", ""))
}

func (d *MSSQLDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	db, err := sql.Open("sqlserver", d.dsn())
	if err != nil {
		return NewError("mssql", FailureConfigInvalid, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return NewError("mssql", FailureConnectionFailed, err)
	}
	d.db = db
	return nil
}

func (d *MSSQLDatasource) HealthCheck(ctx context.Context) bool {
	return d.db != nil && d.db.PingContext(ctx) == nil
}

func (d *MSSQLDatasource) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *MSSQLDatasource) CacheKey() string {
	return fmt.Sprintf("mssql:%s:%d:%s", stringField(d.cfg, "host", "localhost"), intField(d.cfg, "port", 1433), stringField(d.cfg, "database", ""))
}

func (d *MSSQLDatasource) Client() interface{} { return d.db }
