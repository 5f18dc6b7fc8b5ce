package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RequestConfig is the fully assembled description of one logical request. It
// is handed through the request-interceptor chain, which may return a modified
// or replacement config; Method and Endpoint are fixed once built.
type RequestConfig struct {
	Method   string
	URL      string
	Headers  http.Header
	Body     []byte
	Timeout  time.Duration
	Endpoint string
}

// Clone returns a deep copy so interceptors can derive a new config without
// aliasing the original's headers or body.
func (cfg *RequestConfig) Clone() *RequestConfig {
	out := &RequestConfig{
		Method:   cfg.Method,
		URL:      cfg.URL,
		Timeout:  cfg.Timeout,
		Endpoint: cfg.Endpoint,
		Headers:  make(http.Header, len(cfg.Headers)),
	}
	for k, vs := range cfg.Headers {
		out.Headers[k] = append([]string(nil), vs...)
	}
	if cfg.Body != nil {
		out.Body = append([]byte(nil), cfg.Body...)
	}
	return out
}

// RequestOption overrides per-call request assembly.
type RequestOption func(*requestOptions)

type requestOptions struct {
	headers map[string]string
	timeout time.Duration
}

// WithHeader sets a single request header. Header keys are case-insensitive;
// the last write for a key wins.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithHeaders merges all given headers into the request.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithRequestTimeout overrides the client default timeout for this call only.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// buildConfig assembles the RequestConfig for one logical call. It performs no
// network side effects; the only failure mode is body serialization, which
// surfaces synchronously and is never retried.
func (c *Client) buildConfig(method, endpoint string, body interface{}, opts []RequestOption) (*RequestConfig, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	cfg := &RequestConfig{
		Method:   strings.ToUpper(method),
		URL:      c.baseURL + endpoint,
		Headers:  make(http.Header),
		Timeout:  c.timeout,
		Endpoint: endpoint,
	}

	if body != nil {
		serialized, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("serialize request body: %w", err)
		}
		cfg.Body = serialized
		cfg.Headers.Set("Content-Type", "application/json")
	}

	for k, v := range ro.headers {
		cfg.Headers.Set(k, v)
	}

	if ro.timeout > 0 {
		cfg.Timeout = ro.timeout
	}

	return cfg, nil
}

// loadingKey derives the busy-flag registry key for a call. Two in-flight
// calls with the same method and endpoint share a key; see LoadingRegistry
// for the collision caveat.
func loadingKey(method, endpoint string) string {
	return strings.ToUpper(method) + "_" + endpoint
}
