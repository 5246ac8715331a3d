package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go driver, no cgo, matching the teacher's SQLite adapter
)

func init() {
	Register("sqlite", func() Datasource { return &SQLiteDatasource{} })
}

// SQLiteDatasource wraps a file-backed SQLite connection in WAL mode, the
// same mode the teacher's embedded-storage adapter enables for concurrent
// reads during writes.
type SQLiteDatasource struct {
	base
	db *sql.DB
}

func (d *SQLiteDatasource) Name() string { return "sqlite" }

func (d *SQLiteDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "path", "") == "" {
		return NewError("sqlite", FailureConfigInvalid, fmt.Errorf("path is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *SQLiteDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}
	path := stringField(d.cfg, "path", "")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return NewError("sqlite", FailureConfigInvalid, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return NewError("sqlite", FailureConnectionFailed, err)
	}
	d.db = db
	return nil
}

func (d *SQLiteDatasource) HealthCheck(ctx context.Context) bool {
	if d.db == nil {
		return false
	}
	return d.db.PingContext(ctx) == nil
}

func (d *SQLiteDatasource) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// CacheKey is the file path: two adapters pointing at the same file share
// one connection.
func (d *SQLiteDatasource) CacheKey() string {
	return fmt.Sprintf("sqlite:%s", stringField(d.cfg, "path", ""))
}

func (d *SQLiteDatasource) Client() interface{} { return d.db }
