package datasource

import (
	"context"
	"fmt"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
)

func init() {
	Register("elasticsearch", func() Datasource { return &ElasticsearchDatasource{} })
}

// ElasticsearchDatasource is grounded directly on original_source's
// elasticsearch_datasource.py: same config fields (node, username,
// password) and the same cache-key convention
// "elasticsearch:<node>:<username-or-anonymous>".
type ElasticsearchDatasource struct {
	base
	client *elasticsearch.Client
}

func (d *ElasticsearchDatasource) Name() string { return "elasticsearch" }

func (d *ElasticsearchDatasource) Configure(cfg map[string]interface{}) error {
	if stringField(cfg, "node", "") == "" {
		return NewError("elasticsearch", FailureConfigInvalid, fmt.Errorf("node is required"))
	}
	d.configure(cfg)
	return nil
}

func (d *ElasticsearchDatasource) Initialize(ctx context.Context) error {
	if !d.markInitialized() {
		return nil
	}

	node := stringField(d.cfg, "node", "")
	username := stringField(d.cfg, "username", "")
	password := stringField(d.cfg, "password", "")

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{node},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return NewError("elasticsearch", FailureConfigInvalid, err)
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return NewError("elasticsearch", FailureConnectionFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return NewError("elasticsearch", FailureConnectionFailed, fmt.Errorf("ping returned status %s", res.Status()))
	}

	d.client = client
	return nil
}

func (d *ElasticsearchDatasource) HealthCheck(ctx context.Context) bool {
	if d.client == nil {
		return false
	}
	res, err := d.client.Ping(d.client.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

func (d *ElasticsearchDatasource) Close(ctx context.Context) error { return nil }

// CacheKey is taken verbatim from get_cache_key() in the Python original:
// "elasticsearch:<node>:<user-or-anonymous>".
func (d *ElasticsearchDatasource) CacheKey() string {
	username := stringField(d.cfg, "username", "")
	if username == "" {
		username = "anonymous"
	}
	return fmt.Sprintf("elasticsearch:%s:%s", stringField(d.cfg, "node", ""), username)
}

func (d *ElasticsearchDatasource) Client() interface{} { return d.client }
