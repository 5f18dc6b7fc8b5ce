package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// Response is the decoded outcome of a successful attempt. Body holds the raw
// JSON payload; Decode unmarshals it on demand.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Transport performs a single HTTP exchange. Implementations must honor ctx
// cancellation and return an error that unwraps to context.DeadlineExceeded
// when the attempt timer cut the request off, so the engine can tell a timeout
// apart from a connection failure. Non-2xx statuses are returned as responses,
// not errors; classification is the retry engine's job.
type Transport interface {
	RoundTrip(ctx context.Context, cfg *RequestConfig) (*Response, error)
}

// httpTransport is the default Transport over net/http.
type httpTransport struct {
	client *http.Client
}

func newHTTPTransport(client *http.Client) *httpTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) RoundTrip(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	var body io.Reader
	if cfg.Body != nil {
		body = bytes.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
	}, nil
}
