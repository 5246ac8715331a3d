package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocql/gocql"
)

func init() {
	Register("cassandra", func() Datasource { return &CassandraDatasource{} })
}

// CassandraDatasource wraps a gocql.Session over one or more cluster hosts
// (spec §4.C1 NoSQL category).
type CassandraDatasource struct {
	base
	session *gocql.Session
}

func (d *CassandraDatasource) Name() string { return "cassandra" }

func (d *CassandraDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "hosts", "") == "" {
		return NewError("cassandra", FailureConfigInvalid, fmt.Errorf("hosts is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *CassandraDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	hosts := strings.Split(stringField(d.cfg, "hosts", ""), ",")
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = stringField(d.cfg, "keyspace", "")
	cluster.Consistency = gocql.Quorum

	username := stringField(d.cfg, "username", "")
	if username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: stringField(d.cfg, "password", ""),
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return NewError("cassandra", FailureConnectionFailed, err)
	}

	d.session = session
	return nil
}

func (d *CassandraDatasource) HealthCheck(ctx context.Context) bool {
	if d.session == nil || d.session.Closed() {
		return false
	}
	return d.session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec() == nil
}

func (d *CassandraDatasource) Close(ctx context.Context) error {
	if d.session != nil {
		d.session.Close()
	}
	return nil
}

func (d *CassandraDatasource) CacheKey() string {
	return fmt.Sprintf("cassandra:%s:%s", stringField(d.cfg, "hosts", ""), stringField(d.cfg, "keyspace", ""))
}

func (d *CassandraDatasource) Client() interface{} { return d.session }
