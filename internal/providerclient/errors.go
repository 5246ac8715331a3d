package providerclient

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Common errors for rerank/vision provider client operations.
var (
	// ErrCircuitBreakerOpen is returned when circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrInvalidRequest is returned when request format is invalid
	ErrInvalidRequest = errors.New("invalid request format")

	// ErrInvalidResponse is returned when response cannot be parsed
	ErrInvalidResponse = errors.New("invalid response format")

	// ErrEmptyDocuments is returned by Rerank when req.Documents is empty —
	// the most common malformed-request shape for a reranker call, distinct
	// from a generic invalid request so callers and metrics can tell a caller
	// bug ("forgot to pass documents") apart from a malformed query.
	ErrEmptyDocuments = fmt.Errorf("%w: documents must not be empty", ErrInvalidRequest)

	// ErrMissingImage is returned by Vision when neither ImageURL nor
	// ImageB64 is set.
	ErrMissingImage = fmt.Errorf("%w: image_url or image_base64 is required", ErrInvalidRequest)

	// ErrPartialRerank is returned when a reranker backend answers 200 OK but
	// returns fewer scored results than documents submitted — a shape unique
	// to rerank responses (vision responses have no analogous "partial"
	// concept, since there is exactly one answer per call).
	ErrPartialRerank = errors.New("reranker returned fewer results than documents submitted")
)

// HTTPError represents an HTTP error with status code, tagged with which
// provider kind (reranker or vision) and provider name produced it so
// classification and logs can distinguish a misbehaving reranker backend
// from a misbehaving vision backend sharing the same circuit breaker shape.
type HTTPError struct {
	Kind       string
	Provider   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider %q: HTTP %d: %s", e.Kind, e.Provider, e.StatusCode, e.Message)
}

// IsRetryableError determines if an error should be retried by retry logic.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Circuit breaker open - not retryable (fail-fast)
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return false
	}

	// Invalid request/response - not retryable; a malformed RerankRequest or
	// VisionRequest will fail identically on every retry.
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidResponse) {
		return false
	}

	// A partial rerank result set is a backend data-quality issue, not a
	// transient failure; retrying won't produce the missing scores.
	if errors.Is(err, ErrPartialRerank) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// 4xx errors (except 429 rate limit) - not retryable
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return httpErr.StatusCode == 429 // Only retry rate limits
		}
		// 5xx errors - retryable (transient server errors)
		return httpErr.StatusCode >= 500
	}

	// Network errors - classify transient vs permanent
	return isTransientNetworkError(err)
}

// isTransientNetworkError determines if network error is transient and retryable.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// DNS errors - temporary failures are retryable
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	// Operation errors - check for specific syscall errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection refused - service might be restarting (retryable)
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
		// Connection reset - transient network issue (retryable)
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true
		}
		// Network unreachable - might be temporary (retryable)
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return true
		}
	}

	// Timeout errors - always retryable
	if isTimeoutError(err) {
		return true
	}

	// Generic check for "temporary" errors
	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	// Default: don't retry unknown errors
	return false
}

// isTimeoutError checks if error is a timeout.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	timeoutIndicators := []string{
		"timeout",
		"deadline exceeded",
		"context deadline exceeded",
		"i/o timeout",
	}

	for _, indicator := range timeoutIndicators {
		if strings.Contains(strings.ToLower(errMsg), indicator) {
			return true
		}
	}

	type timeout interface {
		Timeout() bool
	}
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}

	return false
}

// ClassifyError classifies an error into a kind-prefixed category for
// metrics and logs — e.g. "reranker_rate_limit" vs "vision_rate_limit" — so
// a dashboard slicing on this label can tell which backend kind is failing
// without needing the provider name in every query.
func ClassifyError(kind string, err error) string {
	if err == nil {
		return kind + "_success"
	}

	category := classifyErrorCategory(err)
	if kind == "" {
		return category
	}
	return kind + "_" + category
}

func classifyErrorCategory(err error) string {
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return "circuit_breaker_open"
	}
	if errors.Is(err, ErrEmptyDocuments) {
		return "empty_documents"
	}
	if errors.Is(err, ErrMissingImage) {
		return "missing_image"
	}
	if errors.Is(err, ErrPartialRerank) {
		return "partial_rerank"
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	if errors.Is(err, ErrInvalidResponse) {
		return "invalid_response"
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return "rate_limit"
		}
		if httpErr.StatusCode >= 500 {
			return "server_error"
		}
		if httpErr.StatusCode >= 400 {
			return "client_error"
		}
	}

	if isTimeoutError(err) {
		return "timeout"
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return "network_error"
	}

	return "unknown_error"
}
