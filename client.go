package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OriginFunc reports the same-origin base URL when the process runs behind
// the serving origin (for example an embedded webview shim), or "" in a
// headless context. Used only by the fallback router.
type OriginFunc func() string

// Client issues JSON API calls with per-attempt timeouts, classifier-driven
// retries, a one-shot fallback-origin rewrite on network failures, and a
// shared loading-state registry. It is safe for concurrent use; construct one
// per backend and inject it rather than sharing a package-level instance.
type Client struct {
	baseURL        string
	baseIsAbsolute bool
	timeout        time.Duration
	maxRetries     int

	transport         Transport
	classifier        ErrorClassifier
	origin            OriginFunc
	fallbackOrigin    string
	fallbackOnTimeout bool

	reporter Reporter
	metrics  *MetricsCollector
	logger   Logger
	debug    *DebugConfig

	loading *LoadingRegistry

	mu                   sync.RWMutex
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor

	validationError error
}

const defaultFallbackOrigin = "http://localhost:3001"

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:        defaultFallbackOrigin,
		timeout:        30 * time.Second,
		maxRetries:     3,
		transport:      newHTTPTransport(nil),
		classifier:     NewDefaultClassifier(),
		fallbackOrigin: defaultFallbackOrigin,
		debug:          DefaultDebugConfig(),
		loading:        NewLoadingRegistry(),
	}

	// The default response-error interceptor reports every failed attempt
	// with call-site context and passes the error through unchanged. It reads
	// the reporter at call time so options may swap it afterwards.
	c.responseInterceptors = []ResponseInterceptor{{
		OnError: func(cfg *RequestConfig, apiErr *APIError) *APIError {
			c.reporterOrDefault().Report(apiErr, ReportContext{
				Component: "apiclient",
				Operation: cfg.Method + " " + cfg.Endpoint,
			})
			return apiErr
		},
	}}

	for _, option := range options {
		option(c)
	}

	if u, err := url.Parse(c.baseURL); err == nil {
		c.baseIsAbsolute = u.IsAbs()
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

func (c *Client) reporterOrDefault() Reporter {
	if c.reporter != nil {
		return c.reporter
	}
	if c.logger != nil {
		return &loggerReporter{logger: c.logger}
	}
	return noopReporter{}
}

// Get performs a GET against baseURL+endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, opts)
}

// Post performs a POST with a JSON-serialized body.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, body, opts)
}

// Put performs a PUT with a JSON-serialized body.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, endpoint, body, opts)
}

// Delete performs a DELETE against baseURL+endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil, opts)
}

// IsLoading reports whether any call is currently in flight.
func (c *Client) IsLoading() bool {
	return c.loading.Any()
}

// IsLoadingFor reports whether a call with the given method and endpoint is
// in flight. Concurrent calls with the same method and endpoint share one
// flag; see LoadingRegistry.
func (c *Client) IsLoadingFor(method, endpoint string) bool {
	return c.loading.Get(loadingKey(method, endpoint))
}

// OnLoadingChange subscribes an observer to loading-state mutations and
// returns its unsubscribe func.
func (c *Client) OnLoadingChange(observer LoadingObserver) func() {
	return c.loading.Subscribe(observer)
}

// LoadingSnapshot returns a copy of the current busy-flag map.
func (c *Client) LoadingSnapshot() map[string]bool {
	return c.loading.Snapshot()
}

// do runs one logical call end to end: build, request interceptors, the
// attempt loop, response interceptors, loading bookkeeping.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, opts []RequestOption) (*Response, error) {
	start := time.Now()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled(c.debug != nil && c.debug.LogRequests) {
		c.logger.Debug("starting request", "requestID", requestID, "method", method, "endpoint", endpoint)
	}

	// Interceptors registered after this point apply to later calls only.
	reqChain, respChain := c.snapshotInterceptors()

	cfg, err := c.buildConfig(method, endpoint, body, opts)
	if err != nil {
		return nil, err
	}

	// Request-construction failures never reach the network, so they are
	// surfaced immediately without touching the retry budget.
	cfg, err = runRequestChain(reqChain, cfg)
	if err != nil {
		return nil, err
	}

	key := loadingKey(cfg.Method, cfg.Endpoint)
	c.loading.Set(key, true)
	defer c.loading.Set(key, false)

	if c.metrics != nil {
		c.metrics.RecordRequestStart(cfg.Method, cfg.Endpoint)
		defer c.metrics.RecordRequestEnd(cfg.Method, cfg.Endpoint)
	}

	resp, err := c.runAttempts(ctx, cfg, respChain, requestID)

	if c.metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		} else if apiErr := (*APIError)(nil); errors.As(err, &apiErr) {
			statusCode = apiErr.StatusCode
		}
		c.metrics.RecordRequest(cfg.Method, cfg.Endpoint, statusCode, time.Since(start))
	}

	return resp, err
}

// runAttempts is the retry engine: strictly sequential attempts, at most
// maxRetries+1, with one opportunistic fallback rewrite that consumes neither
// a budget slot nor a backoff wait.
func (c *Client) runAttempts(ctx context.Context, cfg *RequestConfig, respChain []ResponseInterceptor, requestID string) (*Response, error) {
	attempt := 0
	fallbackTried := false

	for {
		resp, attemptErr := c.attempt(ctx, cfg)
		if attemptErr == nil {
			out, err := runResponseChain(respChain, cfg, resp)
			if err != nil {
				return nil, err
			}
			return out, nil
		}

		if c.metrics != nil {
			c.metrics.RecordError(attemptErr.Code, cfg.Method, cfg.Endpoint)
		}

		if c.shouldFallback(attemptErr, fallbackTried) {
			fallbackTried = true
			cfg.URL = c.fallbackURL(cfg.Endpoint)
			if c.metrics != nil {
				c.metrics.RecordFallbackRewrite(cfg.Method, cfg.Endpoint)
			}
			if c.debugEnabled(c.debug != nil && c.debug.LogFallback) {
				c.logger.Info("rerouting to fallback origin", "requestID", requestID, "url", cfg.URL)
			}
			// Same attempt index, no delay: an in-place substitution, not a
			// retry.
			continue
		}

		attemptErr = runResponseErrorChain(respChain, cfg, attemptErr)

		if !c.classifier.IsRetryable(attemptErr) || attempt >= c.maxRetries {
			return nil, attemptErr
		}

		delay := c.classifier.RetryDelay(attemptErr, attempt)
		if c.debugEnabled(c.debug != nil && c.debug.LogRetries) {
			c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "maxRetries", c.maxRetries, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return nil, &APIError{
				Message:    fmt.Sprintf("%s %s aborted while waiting to retry", cfg.Method, cfg.Endpoint),
				StatusCode: 0,
				Code:       CodeNetworkError,
				Cause:      ctx.Err(),
			}
		case <-time.After(delay):
		}

		attempt++
		if c.metrics != nil {
			c.metrics.RecordRetry(cfg.Method, cfg.Endpoint, attempt)
		}
	}
}

// attempt executes one network attempt under its own timeout-armed context.
// The cancel func runs on every settle path so no timer outlives its attempt.
func (c *Client) attempt(ctx context.Context, cfg *RequestConfig) (*Response, *APIError) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	resp, err := c.transport.RoundTrip(attemptCtx, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &APIError{
				Message:    fmt.Sprintf("%s %s timed out after %v", cfg.Method, cfg.Endpoint, cfg.Timeout),
				StatusCode: http.StatusRequestTimeout,
				Code:       CodeRequestTimeout,
				Cause:      err,
			}
		}
		return nil, &APIError{
			Message:    fmt.Sprintf("%s %s: network request failed", cfg.Method, cfg.Endpoint),
			StatusCode: 0,
			Code:       CodeNetworkError,
			Cause:      err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

// shouldFallback gates the one-shot origin rewrite: a network-class failure,
// not yet tried for this logical call, and a base URL that is absolute (a
// relative base already targets the serving origin).
func (c *Client) shouldFallback(apiErr *APIError, fallbackTried bool) bool {
	if fallbackTried || !c.baseIsAbsolute {
		return false
	}
	if apiErr.Code == CodeNetworkError {
		return true
	}
	return c.fallbackOnTimeout && apiErr.Code == CodeRequestTimeout
}

func (c *Client) fallbackURL(endpoint string) string {
	origin := ""
	if c.origin != nil {
		origin = c.origin()
	}
	if origin == "" {
		origin = c.fallbackOrigin
	}
	return strings.TrimSuffix(origin, "/") + endpoint
}

func (c *Client) debugEnabled(stage bool) bool {
	return c.debug != nil && c.debug.Enabled && stage && c.logger != nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
