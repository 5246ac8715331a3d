package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

func init() {
	Register("mysql", func() Datasource { return &MySQLDatasource{} })
}

// MySQLDatasource covers both MySQL and MariaDB, which share a wire
// protocol and the same Go driver.
type MySQLDatasource struct {
	base
	db *sql.DB
}

func (d *MySQLDatasource) Name() string { return "mysql" }

func (d *MySQLDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "host", "") == "" {
		return NewError("mysql", FailureConfigInvalid, fmt.Errorf("host is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *MySQLDatasource) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		stringField(d.cfg, "username", "root"),
		stringField(d.cfg, "password", ""),
		stringField(d.cfg, "host", "localhost"),
		intField(d.cfg, "port", 3306),
		stringField(d.cfg, "database", ""))
}

func (d *MySQLDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	db, err := sql.Open("mysql", d.dsn())
	if err != nil {
		return NewError("mysql", FailureConfigInvalid, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return NewError("mysql", FailureConnectionFailed, err)
	}
	d.db = db
	return nil
}

func (d *MySQLDatasource) HealthCheck(ctx context.Context) bool {
	return d.db != nil && d.db.PingContext(ctx) == nil
}

func (d *MySQLDatasource) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *MySQLDatasource) CacheKey() string {
	return fmt.Sprintf("mysql:%s:%d:%s", stringField(d.cfg, "host", "localhost"), intField(d.cfg, "port", 3306), stringField(d.cfg, "database", ""))
}

func (d *MySQLDatasource) Client() interface{} { return d.db }
