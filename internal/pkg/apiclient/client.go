// Package apiclient makes JSON RPC calls to the storage API. A 401 forces one
// token refresh and replays the call; 429 and 5xx responses are retried with
// backoff (Retry-After wins when longer); repeated failures open a circuit
// breaker.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"goportfolio/internal/core"
	"goportfolio/internal/httpclient"
	"goportfolio/internal/observability"
)

// Config holds configuration for the API client
type Config struct {
	// ServiceName identifies the upstream for error messages
	ServiceName string

	// BaseURL is the API base URL
	BaseURL string

	// Retry configuration
	MaxRetries     int           // Retries after the first attempt (default: 2)
	InitialBackoff time.Duration // Initial backoff duration (default: 500ms)
	MaxBackoff     time.Duration // Maximum backoff duration, also caps Retry-After (default: 8s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// CircuitBreaker is nil to never stop calling the storage API.
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig sets when calls to the storage API stop and resume.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // successful trial calls that close it again
	Timeout          time.Duration // cooldown before trial calls are let through
}

// DefaultConfig returns default client configuration
func DefaultConfig(serviceName, baseURL string) Config {
	return Config{
		ServiceName:    serviceName,
		BaseURL:        baseURL,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		BackoffFactor:  2.0,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// TokenSource supplies bearer tokens. ForceRefresh is called at most once per
// request, after the upstream answered 401 for the rejected token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, rejected string) (string, error)
}

// Client is an authenticated JSON client for RPC-style storage APIs
type Client struct {
	httpClient     *http.Client
	config         Config
	tokens         TokenSource
	circuitBreaker *circuitBreaker
	calls          atomic.Int64
}

// New creates a client. A nil httpClient uses the shared default client;
// a nil tokens sends unauthenticated requests.
func New(httpClient *http.Client, config Config, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	c := &Client{
		httpClient: httpClient,
		config:     config,
		tokens:     tokens,
	}

	if config.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			config.CircuitBreaker.FailureThreshold,
			config.CircuitBreaker.SuccessThreshold,
			config.CircuitBreaker.Timeout,
		)
	}

	return c
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Calls returns the number of HTTP round trips made so far, retries included.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Request represents an RPC call. Body is always JSON encoded; a nil Body is sent as "null".
type Request struct {
	Endpoint string
	Body     any
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes a request with retries and circuit breaking, then unmarshals the response
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewUpstreamError(c.config.ServiceName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), false, err)
		}
	}

	return nil
}

// DoRaw executes a request with retries and circuit breaking, returning the raw response
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	if !c.circuitBreaker.Allow() {
		return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusServiceUnavailable,
			"circuit breaker is open - storage API temporarily unavailable", true, nil)
	}

	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusInternalServerError, "failed to marshal request", false, err)
	}

	var lastErr error
	var retryAfter time.Duration
	refreshed := false
	maxAttempts := c.config.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && retryAfter >= 0 {
			backoff := max(c.calculateBackoff(attempt), retryAfter)
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		retryAfter = 0

		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.doRequest(ctx, req.Endpoint, body, token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			c.circuitBreaker.RecordFailure()
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			if refreshed || c.tokens == nil {
				return nil, core.ParseUpstreamError(c.config.ServiceName, resp.StatusCode, resp.Body)
			}
			if _, err := c.tokens.ForceRefresh(ctx, token); err != nil {
				return nil, err
			}
			refreshed = true
			// The replayed call neither waits nor consumes a retry.
			retryAfter = -1
			attempt--
			continue
		}

		if isRetryable(resp.StatusCode) {
			c.circuitBreaker.RecordFailure()
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = core.ParseUpstreamError(c.config.ServiceName, resp.StatusCode, resp.Body)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 500 {
				c.circuitBreaker.RecordFailure()
			}
			return nil, core.ParseUpstreamError(c.config.ServiceName, resp.StatusCode, resp.Body)
		}

		c.circuitBreaker.RecordSuccess()
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusBadGateway, "request failed after retries", true, nil)
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.Token(ctx)
}

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte, token string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusInternalServerError, "failed to create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	c.calls.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observability.ObserveUpstream(endpoint, 0, time.Since(start))
		return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusBadGateway, "failed to send request: "+err.Error(), true, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	observability.ObserveUpstream(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, core.NewUpstreamError(c.config.ServiceName, http.StatusBadGateway, "failed to read response: "+err.Error(), true, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryable returns true if the status code indicates a retryable error
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}

// parseRetryAfter reads a delay in seconds; HTTP-date values are ignored.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

