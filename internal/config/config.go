// Package config loads and validates the ORBIT configuration tree: the root
// YAML file plus any files it pulls in via import:, with ${VAR} substitution
// and a short-TTL cache over the merged result.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root of the merged configuration tree.
type Config struct {
	General     GeneralConfig                `mapstructure:"general"`
	Inference   map[string]ProviderConfig    `mapstructure:"inference"`
	Embedding   map[string]ProviderConfig    `mapstructure:"embedding"`
	Reranker    map[string]ProviderConfig    `mapstructure:"reranker"`
	Vision      map[string]ProviderConfig    `mapstructure:"vision"`
	Datasources map[string]DatasourceConfig  `mapstructure:"datasources"`
	Adapters    []AdapterConfig              `mapstructure:"adapters"`
	Log         LogConfig                    `mapstructure:"log"`
	Metrics     MetricsConfig                `mapstructure:"metrics"`
	Admin       AdminConfig                  `mapstructure:"admin"`
	Lock        LockConfig                   `mapstructure:"lock"`
	Cache       CacheConfig                  `mapstructure:"cache"`
}

// GeneralConfig holds process-wide defaults used when an adapter does not
// override a given collaborator.
type GeneralConfig struct {
	DefaultInferenceProvider string `mapstructure:"default_inference_provider"`
	DefaultTimezone          string `mapstructure:"default_timezone"`
	Environment              string `mapstructure:"environment"`
}

// ProviderConfig is the raw config fragment for one inference/embedding/
// reranker/vision provider entry, keyed by provider name in the parent map.
type ProviderConfig struct {
	Enabled bool                   `mapstructure:"enabled"`
	Kind    string                 `mapstructure:"kind" validate:"required_if=Enabled true"`
	Model   string                 `mapstructure:"model"`
	BaseURL string                 `mapstructure:"base_url"`
	APIKey  string                 `mapstructure:"api_key"`
	Extra   map[string]interface{} `mapstructure:",remain"`
}

// DatasourceConfig is the raw config fragment for one datasources.<name>
// entry; fields vary by backend so most of it is carried as a free-form map.
type DatasourceConfig struct {
	Driver string                 `mapstructure:"driver"`
	Extra  map[string]interface{} `mapstructure:",remain"`
}

// AdapterConfig is the on-disk shape of one entry in the adapters: list,
// decoded verbatim from YAML before being turned into an adapter.Descriptor.
type AdapterConfig struct {
	Name               string                 `mapstructure:"name"`
	Enabled            bool                   `mapstructure:"enabled"`
	Type               string                 `mapstructure:"type"`
	DatasourceRef      string                 `mapstructure:"datasource_ref"`
	InferenceProvider  string                 `mapstructure:"inference_provider"`
	Model              string                 `mapstructure:"model"`
	EmbeddingProvider  string                 `mapstructure:"embedding_provider"`
	RerankerProvider   string                 `mapstructure:"reranker_provider"`
	VisionProvider     string                 `mapstructure:"vision_provider"`
	Config             map[string]interface{} `mapstructure:"config"`
}

// LogConfig mirrors the teacher's logging configuration shape.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// AdminConfig controls the admin reload endpoint's auth requirement.
type AdminConfig struct {
	Port          int    `mapstructure:"port"`
	AuthEnabled   bool   `mapstructure:"auth_enabled"`
	BearerToken   string `mapstructure:"bearer_token"`
}

// LockConfig configures the distributed reload lock (redis-backed).
type LockConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	TTL            time.Duration `mapstructure:"ttl"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// CacheConfig controls the Config Manager's own TTL cache over merged
// configuration reads (spec §4.C7 "cache the result with a short TTL").
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.default_inference_provider", "")
	v.SetDefault("general.default_timezone", "UTC")
	v.SetDefault("general.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("admin.port", 8080)
	v.SetDefault("admin.auth_enabled", false)

	v.SetDefault("lock.enabled", false)
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.acquire_timeout", "5s")

	v.SetDefault("cache.ttl", "5s")
}

// Manager loads, merges, validates and caches the configuration tree. It is
// the sole owner of the process-wide merged-config cache (spec §5 "no global
// mutable state beyond the registry and the config cache").
type Manager struct {
	rootPath string
	cache    *lru.LRU[string, *Config]
}

const cacheKey = "merged"

// NewManager creates a Config Manager that reads rootPath and caches the
// merged result for ttl.
func NewManager(rootPath string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Manager{
		rootPath: rootPath,
		cache:    lru.NewLRU[string, *Config](1, nil, ttl),
	}
}

// Load returns the merged, validated configuration, serving from the TTL
// cache when possible. Call Invalidate to force a fresh read sooner.
func (m *Manager) Load() (*Config, error) {
	if cfg, ok := m.cache.Get(cacheKey); ok {
		return cfg, nil
	}
	cfg, err := LoadConfig(m.rootPath)
	if err != nil {
		return nil, err
	}
	m.cache.Add(cacheKey, cfg)
	return cfg, nil
}

// Invalidate drops the cached merged config so the next Load re-reads from
// disk. Used by the admin reload endpoint before re-resolving the catalog.
func (m *Manager) Invalidate() {
	m.cache.Remove(cacheKey)
}

// LoadConfig reads rootPath, recursively merges any import: directives,
// substitutes ${VAR} tokens, decodes into Config and validates it.
func LoadConfig(rootPath string) (*Config, error) {
	merged, err := loadMergedYAML(rootPath, map[string]bool{})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	substituted := substituteEnv(merged)

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	raw, err := yaml.Marshal(substituted)
	if err != nil {
		return nil, fmt.Errorf("config: re-marshal merged tree: %w", err)
	}
	if err := v.MergeConfig(strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("config: merge into viper: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", &ConfigInvalidError{Reason: err.Error()})
	}

	return &cfg, nil
}

// loadMergedYAML reads path, recursively resolves its import: directive (if
// any), and deep-merges the imports under the main file — last import wins
// over earlier ones, and the main file overrides all of its imports (spec
// §4.C7). visited guards against import cycles.
func loadMergedYAML(path string, visited map[string]bool) (map[string]interface{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visited[abs] {
		return nil, fmt.Errorf("import cycle detected at %s", abs)
	}
	visited[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}

	imports := extractImports(doc["import"])
	delete(doc, "import")

	dir := filepath.Dir(abs)
	merged := map[string]interface{}{}
	for _, imp := range imports {
		importPath := imp
		if !filepath.IsAbs(importPath) {
			importPath = filepath.Join(dir, importPath)
		}
		sub, err := loadMergedYAML(importPath, visited)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, sub)
	}

	return deepMerge(merged, doc), nil
}

func extractImports(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// deepMerge merges src into dst key-wise; nested maps merge recursively,
// scalars and lists are overridden wholesale by src.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := toStringMap(existing)
			newMap, newIsMap := toStringMap(v)
			if existingIsMap && newIsMap {
				out[k] = deepMerge(existingMap, newMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func toStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// substituteEnv walks the tree replacing ${VAR} tokens in string scalars
// with the corresponding environment variable, expanding to empty and
// logging a warning when the variable is unset.
func substituteEnv(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = substituteEnv(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = substituteEnv(val)
		}
		return out
	case string:
		return expandVars(v)
	default:
		return v
	}
}

func expandVars(s string) string {
	return os.Expand(s, func(name string) string {
		value, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config: environment variable is not set, expanding to empty", "var", name)
		}
		return value
	})
}
