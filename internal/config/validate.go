package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate checks structural invariants of the merged config tree, including
// that every adapter entry has a non-empty, unique name. adapter.LoadCatalog
// repeats the name checks for configs that never passed through Validate.
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		return fmt.Errorf("log.level must not be empty")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be in 1..65535 when metrics are enabled, got %d", c.Metrics.Port)
	}

	if c.Admin.AuthEnabled && c.Admin.BearerToken == "" {
		return fmt.Errorf("admin.bearer_token must be set when admin.auth_enabled is true")
	}

	for name, p := range c.Inference {
		if err := structValidator.Struct(p); err != nil {
			return fmt.Errorf("inference.%s: %w", name, err)
		}
	}
	for name, p := range c.Embedding {
		if err := structValidator.Struct(p); err != nil {
			return fmt.Errorf("embedding.%s: %w", name, err)
		}
	}

	seen := make(map[string]bool, len(c.Adapters))
	for _, a := range c.Adapters {
		if a.Name == "" {
			return fmt.Errorf("adapters: entry with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("adapters: duplicate adapter name %q", a.Name)
		}
		seen[a.Name] = true
	}

	return nil
}
