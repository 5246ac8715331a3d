package adapter

import (
	"testing"

	"github.com/orbit-project/orbit/internal/config"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// testConfigWithAdapters decodes yamlBody directly into a config.Config,
// bypassing config.Config.Validate so LoadCatalog's own duplicate-name
// check can be exercised in isolation.
func testConfigWithAdapters(t *testing.T, yamlBody string) *config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlBody), &cfg))
	return &cfg
}
