package providerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rerankResponse{
			Results: []RerankResult{
				{Index: 1, Document: "doc-b", Score: 0.9},
				{Index: 0, Document: "doc-a", Score: 0.4},
			},
		})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 1
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.CircuitBreaker.Enabled = false

	client, err := New(cfg, "reranker", "test-reranker", nil)
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), RerankRequest{
		Query:     "find the best doc",
		Documents: []string{"doc-a", "doc-b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-b", results[0].Document)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestClient_Rerank_InvalidRequest(t *testing.T) {
	client, err := New(DefaultConfig(), "reranker", "test-reranker", nil)
	require.NoError(t, err)

	_, err = client.Rerank(context.Background(), RerankRequest{Query: ""})
	require.Error(t, err)
}

func TestClient_Vision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vision" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(visionResponse{Description: "a cat sitting on a mat"})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.CircuitBreaker.Enabled = false

	client, err := New(cfg, "vision", "test-vision", nil)
	require.NoError(t, err)

	result, err := client.Vision(context.Background(), VisionRequest{
		ImageURL: "https://example.com/cat.png",
		Prompt:   "describe this image",
	})
	require.NoError(t, err)
	assert.Equal(t, "a cat sitting on a mat", result.Description)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(rerankResponse{Results: []RerankResult{{Index: 0, Document: "d", Score: 1}}})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 3
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.CircuitBreaker.Enabled = false

	client, err := New(cfg, "reranker", "test-reranker", nil)
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), RerankRequest{Query: "q", Documents: []string{"d"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, attempts)
}

func TestClient_NonRetryableClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 3
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.CircuitBreaker.Enabled = false

	client, err := New(cfg, "reranker", "test-reranker", nil)
	require.NoError(t, err)

	_, err = client.Rerank(context.Background(), RerankRequest{Query: "q", Documents: []string{"d"}})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestClient_Rerank_PartialResultsIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{
			Results: []RerankResult{{Index: 0, Document: "doc-a", Score: 0.9}},
		})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.CircuitBreaker.Enabled = false

	client, err := New(cfg, "reranker", "test-reranker", nil)
	require.NoError(t, err)

	results, err := client.Rerank(context.Background(), RerankRequest{
		Query:     "q",
		Documents: []string{"doc-a", "doc-b", "doc-c"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialRerank)
	assert.Len(t, results, 1, "partial results are still returned alongside the error")
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client, err := New(cfg, "reranker", "test-reranker", nil)
	require.NoError(t, err)

	require.NoError(t, client.Health(context.Background()))
}
