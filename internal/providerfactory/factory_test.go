package providerfactory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-project/orbit/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Inference: map[string]config.ProviderConfig{
			"gpt":     {Enabled: true, Kind: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
			"offline": {Enabled: false, Kind: "openai", APIKey: "sk-test"},
		},
		Reranker: map[string]config.ProviderConfig{
			"cross-encoder": {Enabled: true, BaseURL: "http://localhost:9000"},
		},
		Vision: map[string]config.ProviderConfig{
			"describe": {Enabled: true, BaseURL: "http://localhost:9001"},
		},
	}
}

func TestFactory_GetOrCreate_NotConfigured(t *testing.T) {
	f := New(testConfig())
	_, err := f.GetOrCreate(context.Background(), KindInference, "missing", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestFactory_GetOrCreate_Disabled(t *testing.T) {
	f := New(testConfig())
	_, err := f.GetOrCreate(context.Background(), KindInference, "offline", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestFactory_GetOrCreate_Reranker_CachesHandle(t *testing.T) {
	f := New(testConfig())

	h1, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	require.NotNil(t, h1.Reranker)

	h2, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	assert.Same(t, h1, h2, "second call should return the cached handle")
}

func TestFactory_GetOrCreate_Vision(t *testing.T) {
	f := New(testConfig())
	h, err := f.GetOrCreate(context.Background(), KindVision, "describe", "")
	require.NoError(t, err)
	require.NotNil(t, h.Vision)
	assert.Equal(t, KindVision, h.Kind)
}

func TestFactory_ModelOverride_DistinctCacheKey(t *testing.T) {
	f := New(testConfig())

	h1, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)

	h2, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "v2")
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, "v2", h2.Model)
}

func TestFactory_Invalidate(t *testing.T) {
	f := New(testConfig())

	h1, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)

	f.Invalidate(KindReranker, "cross-encoder", "")

	h2, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestFactory_Release_SharedHandleSurvivesSingleRelease(t *testing.T) {
	f := New(testConfig())

	h1, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	_, err = f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)

	evicted := f.Release(KindReranker, "cross-encoder", "")
	assert.False(t, evicted, "two holders acquired, only one released: entry must survive")

	h2, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	assert.Same(t, h1, h2, "surviving entry should still be the original handle")
}

func TestFactory_Release_SoleHolderEvicts(t *testing.T) {
	f := New(testConfig())

	h1, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	require.NotNil(t, h1)

	evicted := f.Release(KindReranker, "cross-encoder", "")
	assert.True(t, evicted, "sole holder released: entry must be evicted")

	h2, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "rebuilt after eviction")
}

func TestFactory_Release_UnknownKeyIsNoop(t *testing.T) {
	f := New(testConfig())
	assert.False(t, f.Release(KindReranker, "never-acquired", ""))
}

func TestFactory_Release_MoreTimesThanAcquiredIsNoop(t *testing.T) {
	f := New(testConfig())

	_, err := f.GetOrCreate(context.Background(), KindReranker, "cross-encoder", "")
	require.NoError(t, err)

	assert.True(t, f.Release(KindReranker, "cross-encoder", ""))
	assert.False(t, f.Release(KindReranker, "cross-encoder", ""))
}

func TestFactory_ListConfiguredAndEnabled(t *testing.T) {
	f := New(testConfig())

	configured := f.ListConfigured(KindInference)
	assert.ElementsMatch(t, []string{"gpt", "offline"}, configured)

	enabled := f.ListEnabled(KindInference)
	assert.ElementsMatch(t, []string{"gpt"}, enabled)
}

func TestFactory_UpdateConfig(t *testing.T) {
	f := New(testConfig())

	_, err := f.GetOrCreate(context.Background(), KindInference, "newcomer", "")
	require.Error(t, err)

	next := testConfig()
	next.Inference["newcomer"] = config.ProviderConfig{Enabled: true, Kind: "ollama", BaseURL: "http://localhost:11434"}
	f.UpdateConfig(next)

	h, err := f.GetOrCreate(context.Background(), KindInference, "newcomer", "")
	require.NoError(t, err)
	require.NotNil(t, h.LLM)
}

func TestCacheKey_EmptyModelOverrideUsesSentinel(t *testing.T) {
	assert.Equal(t, "inference:gpt:∅", cacheKey(KindInference, "gpt", ""))
	assert.Equal(t, "inference:gpt:v2", cacheKey(KindInference, "gpt", "v2"))
}
