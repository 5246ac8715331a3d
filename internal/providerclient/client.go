package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for one HTTP-backed rerank or vision provider
// client, grounded on the teacher's internal/infrastructure/llm/client.go
// retry/backoff shape (spec SPEC_FULL.md DOMAIN STACK).
type Config struct {
	BaseURL       string               `mapstructure:"base_url"`
	APIKey        string               `mapstructure:"api_key"`
	Model         string               `mapstructure:"model"`
	Timeout       time.Duration        `mapstructure:"timeout"`
	MaxRetries    int                  `mapstructure:"max_retries"`
	RetryDelay    time.Duration        `mapstructure:"retry_delay"`
	RetryBackoff  float64              `mapstructure:"retry_backoff"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DefaultConfig returns sane defaults for a provider HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		RetryBackoff:   2.0,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// RerankRequest asks a reranker provider to score documents against a query.
type RerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// RerankResult is one scored document. Rerank returns results in the order
// the backend sent them; it does not sort them.
type RerankResult struct {
	Index    int     `json:"index"`
	Document string  `json:"document"`
	Score    float64 `json:"relevance_score"`
}

// VisionRequest asks a vision provider to describe or answer about an image.
type VisionRequest struct {
	ImageURL string `json:"image_url,omitempty"`
	ImageB64 string `json:"image_base64,omitempty"`
	Prompt   string `json:"prompt"`
}

// VisionResult is a vision provider's free-form answer plus any structured
// extras it returned.
type VisionResult struct {
	Description string                 `json:"description"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

type visionResponse struct {
	Description string                 `json:"description"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Client is a retrying HTTP client guarded by a circuit breaker, shared by
// the reranker and vision provider kinds (spec §4.C3 ProviderHandle). kind
// and providerName tag every log line, metric, and wrapped error so a
// deployment running several reranker and vision providers at once can tell
// which one is degraded.
type Client struct {
	config       Config
	kind         string
	providerName string
	httpClient   *http.Client
	breaker      *CircuitBreaker
	logger       *slog.Logger
}

// New constructs a Client for one (kind, providerName) provider identity —
// kind is "reranker" or "vision" (providerfactory.Kind stringified). A nil
// logger falls back to slog.Default.
func New(config Config, kind, providerName string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var breaker *CircuitBreaker
	if config.CircuitBreaker.Enabled {
		var err error
		breaker, err = NewCircuitBreaker(config.CircuitBreaker, kind, providerName, logger, NewCircuitBreakerMetrics())
		if err != nil {
			return nil, fmt.Errorf("providerclient: %w", err)
		}
	}

	return &Client{
		config:       config,
		kind:         kind,
		providerName: providerName,
		httpClient:   &http.Client{Timeout: config.Timeout},
		breaker:      breaker,
		logger:       logger,
	}, nil
}

// Rerank scores req.Documents against req.Query via POST {base_url}/rerank,
// retrying transient failures with exponential backoff.
func (c *Client) Rerank(ctx context.Context, req RerankRequest) ([]RerankResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("providerclient: reranker %q: %w: query must not be empty", c.providerName, ErrInvalidRequest)
	}
	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("providerclient: reranker %q: %w", c.providerName, ErrEmptyDocuments)
	}

	var out rerankResponse
	if err := c.doWithRetry(ctx, "/rerank", req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("providerclient: reranker %q: %s", c.providerName, out.Error)
	}
	if len(out.Results) < len(req.Documents) {
		return out.Results, fmt.Errorf("providerclient: reranker %q: %w (%d of %d)", c.providerName, ErrPartialRerank, len(out.Results), len(req.Documents))
	}
	return out.Results, nil
}

// Vision answers req.Prompt about the given image via POST {base_url}/vision.
func (c *Client) Vision(ctx context.Context, req VisionRequest) (*VisionResult, error) {
	if req.ImageURL == "" && req.ImageB64 == "" {
		return nil, fmt.Errorf("providerclient: vision provider %q: %w", c.providerName, ErrMissingImage)
	}

	var out visionResponse
	if err := c.doWithRetry(ctx, "/vision", req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("providerclient: vision provider %q: %s", c.providerName, out.Error)
	}
	return &VisionResult{Description: out.Description, Raw: out.Raw}, nil
}

// Health probes GET {base_url}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("providerclient: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("providerclient: health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Kind: c.kind, Provider: c.providerName, StatusCode: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// doWithRetry POSTs body to path as JSON, decoding the response into out.
// Each attempt runs through the circuit breaker when enabled; retries use
// exponential backoff and stop immediately on a non-retryable error.
func (c *Client) doWithRetry(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("providerclient: marshal request: %w", err)
	}

	var lastErr error
	delay := c.config.RetryDelay

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.config.RetryBackoff)
		}

		err := c.call(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Warn("provider request attempt failed",
			"kind", c.kind, "provider", c.providerName, "path", path, "attempt", attempt+1,
			"category", ClassifyError(c.kind, err), "error", err)
		if !IsRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("providerclient: request to %s failed after %d attempts: %w", path, c.config.MaxRetries+1, lastErr)
}

func (c *Client) call(ctx context.Context, path string, payload []byte, out interface{}) error {
	run := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return &HTTPError{Kind: c.kind, Provider: c.providerName, StatusCode: resp.StatusCode, Message: string(respBody)}
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil
	}

	if c.breaker == nil {
		return run(ctx)
	}
	return c.breaker.Call(ctx, run)
}
