// Package github provides the GitHub API client used by the relay.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	retry "github.com/codeGROOVE-dev/retry-go"
)

// DefaultBaseURL is the root of the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// Retry constants. Webhook handling is latency sensitive, so the budget is small.
const (
	maxRetryAttempts  = 4
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	perPageLimit      = 100 // GitHub API per_page limit
)

// Client is a GitHub REST/GraphQL client authenticated with one installation token.
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	token      string
	retryDelay time.Duration
}

// NewClient creates a client that authenticates every request with token.
// An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient HTTPDoer, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		retryDelay: initialRetryDelay,
	}
}

// Token returns the installation access token.
func (c *Client) Token() string {
	return c.token
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// doRequest performs an authenticated request and returns the response for 2xx statuses.
// Non-2xx responses are converted to *APIError. Only GET requests are retried: a
// mutating call that timed out may already have been applied.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body any) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	attempt := func() (*http.Response, error) {
		var bodyReader io.Reader = http.NoBody
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed by the caller or parseAPIError
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer drainAndCloseBody(resp.Body)
			return nil, parseAPIError(resp)
		}
		return resp, nil
	}

	slog.DebugContext(ctx, "HTTP request", "component", "http", "method", method, "url", apiURL)

	if method != http.MethodGet {
		resp, err := attempt()
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "HTTP response", "component", "http", "method", method, "url", apiURL, "status", resp.StatusCode)
		return resp, nil
	}

	var resp *http.Response
	err := c.retryWithBackoff(ctx, method+" "+apiURL, func() error {
		r, err := attempt()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "HTTP response", "component", "http", "method", method, "url", apiURL, "status", resp.StatusCode)
	return resp, nil
}

// getJSON fetches path and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.sendJSON(ctx, http.MethodGet, path, nil, out)
}

// sendJSON performs a request against path and decodes the response into out when non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	return c.sendJSONURL(ctx, method, c.baseURL+path, body, out)
}

func (c *Client) sendJSONURL(ctx context.Context, method, apiURL string, body, out any) error {
	resp, err := c.doRequest(ctx, method, apiURL, body)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, apiURL, err)
	}
	return nil
}

// retryWithBackoff executes fn with exponential backoff using the codeGROOVE retry library.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	delay := c.retryDelay
	if delay <= 0 {
		delay = initialRetryDelay
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetryAttempts)),
		retry.Delay(delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(delay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.InfoContext(ctx, "Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

// isRetryable reports whether err is a transient failure worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= http.StatusInternalServerError ||
			IsRateLimited(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "EOF")
}
