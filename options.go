package apiclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithBaseURL sets the origin all endpoint paths are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many extra attempts follow the first one.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithClassifier swaps the retry policy.
func WithClassifier(classifier ErrorClassifier) Option {
	return func(c *Client) {
		c.classifier = classifier
	}
}

// WithTransport swaps the HTTP transport.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithHTTPClient routes the default transport through a custom *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.transport = newHTTPTransport(client)
	}
}

// WithOriginFunc supplies the runtime-origin probe used by the fallback
// router.
func WithOriginFunc(origin OriginFunc) Option {
	return func(c *Client) {
		c.origin = origin
	}
}

// WithFallbackOrigin overrides the local origin used when no runtime origin
// is available.
func WithFallbackOrigin(origin string) Option {
	return func(c *Client) {
		c.fallbackOrigin = strings.TrimSuffix(origin, "/")
	}
}

// WithFallbackOnTimeout widens the fallback trigger to REQUEST_TIMEOUT
// failures in addition to connection failures.
func WithFallbackOnTimeout() Option {
	return func(c *Client) {
		c.fallbackOnTimeout = true
	}
}

// WithReporter sets the sink fed by the default response-error interceptor.
func WithReporter(reporter Reporter) Option {
	return func(c *Client) {
		c.reporter = reporter
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithRequestInterceptor registers a request interceptor at construction.
func WithRequestInterceptor(ri RequestInterceptor) Option {
	return func(c *Client) {
		c.requestInterceptors = append(c.requestInterceptors, ri)
	}
}

// WithResponseInterceptor registers a response interceptor at construction.
func WithResponseInterceptor(ri ResponseInterceptor) Option {
	return func(c *Client) {
		c.responseInterceptors = append(c.responseInterceptors, ri)
	}
}

// ValidateConfiguration checks the assembled configuration and returns an
// error describing every violation found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.maxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.classifier == nil {
		problems = append(problems, "classifier must be set")
	}
	if c.transport == nil {
		problems = append(problems, "transport must be set")
	}
	if c.baseURL == "" {
		problems = append(problems, "baseURL must be set")
	} else if _, err := url.Parse(c.baseURL); err != nil {
		problems = append(problems, fmt.Sprintf("baseURL is not parseable: %v", err))
	}
	if c.fallbackOrigin != "" {
		if u, err := url.Parse(c.fallbackOrigin); err != nil || !u.IsAbs() {
			problems = append(problems, "fallbackOrigin must be an absolute URL")
		}
	}
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen == nil {
		problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
