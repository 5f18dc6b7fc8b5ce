package apiclient

// RequestInterceptor transforms a RequestConfig before it reaches the network.
// Interceptors run strictly in registration order; each receives the previous
// interceptor's output. A non-nil error aborts the call immediately without
// any retry, since the request never reached the network; OnError, when set,
// is invoked first for side-effecting/reporting purposes.
type RequestInterceptor struct {
	OnRequest func(cfg *RequestConfig) (*RequestConfig, error)
	OnError   func(err error)
}

// ResponseInterceptor observes the outcome of a call. OnResponse runs in
// registration order after a 2xx response and its transformations compose.
// OnError runs in registration order after every failed attempt, before the
// retry-vs-stop decision; it may return a replacement *APIError to adjust
// classification, or the input unchanged.
type ResponseInterceptor struct {
	OnResponse func(cfg *RequestConfig, resp *Response) (*Response, error)
	OnError    func(cfg *RequestConfig, apiErr *APIError) *APIError
}

// UseRequest appends a request interceptor. Registration is append-only;
// interceptors apply to calls that enter the builder after this returns.
func (c *Client) UseRequest(ri RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInterceptors = append(c.requestInterceptors, ri)
}

// UseResponse appends a response interceptor.
func (c *Client) UseResponse(ri ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseInterceptors = append(c.responseInterceptors, ri)
}

func (c *Client) snapshotInterceptors() ([]RequestInterceptor, []ResponseInterceptor) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestInterceptors[:len(c.requestInterceptors):len(c.requestInterceptors)],
		c.responseInterceptors[:len(c.responseInterceptors):len(c.responseInterceptors)]
}

func runRequestChain(chain []RequestInterceptor, cfg *RequestConfig) (*RequestConfig, error) {
	for _, ri := range chain {
		if ri.OnRequest == nil {
			continue
		}
		next, err := ri.OnRequest(cfg)
		if err != nil {
			if ri.OnError != nil {
				ri.OnError(err)
			}
			return nil, err
		}
		cfg = next
	}
	return cfg, nil
}

func runResponseChain(chain []ResponseInterceptor, cfg *RequestConfig, resp *Response) (*Response, error) {
	for _, ri := range chain {
		if ri.OnResponse == nil {
			continue
		}
		next, err := ri.OnResponse(cfg, resp)
		if err != nil {
			return nil, err
		}
		resp = next
	}
	return resp, nil
}

func runResponseErrorChain(chain []ResponseInterceptor, cfg *RequestConfig, apiErr *APIError) *APIError {
	for _, ri := range chain {
		if ri.OnError == nil {
			continue
		}
		if replaced := ri.OnError(cfg, apiErr); replaced != nil {
			apiErr = replaced
		}
	}
	return apiErr
}
