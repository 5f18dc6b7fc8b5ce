package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type transportStep struct {
	resp  *Response
	err   error
	block bool
}

// scriptedTransport plays back a fixed sequence of outcomes and records what
// it was asked to do. The last step repeats once the script runs out.
type scriptedTransport struct {
	mu      sync.Mutex
	steps   []transportStep
	urls    []string
	headers []http.Header
}

func (t *scriptedTransport) RoundTrip(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	t.mu.Lock()
	t.urls = append(t.urls, cfg.URL)
	observed := make(http.Header, len(cfg.Headers))
	for k, vs := range cfg.Headers {
		observed[k] = append([]string(nil), vs...)
	}
	t.headers = append(t.headers, observed)

	var step transportStep
	if len(t.steps) > 0 {
		step = t.steps[0]
		if len(t.steps) > 1 {
			t.steps = t.steps[1:]
		}
	}
	t.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return step.resp, step.err
}

func (t *scriptedTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *scriptedTransport) urlAt(i int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.urls[i]
}

// countingClassifier retries everything transient with zero delay and counts
// how many waits were requested.
type countingClassifier struct {
	mu     sync.Mutex
	delays int
}

func (p *countingClassifier) IsRetryable(apiErr *APIError) bool {
	if apiErr == nil {
		return false
	}
	if apiErr.IsNetworkClass() {
		return true
	}
	return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
}

func (p *countingClassifier) RetryDelay(_ *APIError, _ int) time.Duration {
	p.mu.Lock()
	p.delays++
	p.mu.Unlock()
	return 0
}

func (p *countingClassifier) delayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delays
}

func okResponse(body string) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       json.RawMessage(body),
	}
}

func newTestClient(transport Transport, extra ...Option) (*Client, *countingClassifier) {
	classifier := &countingClassifier{}
	opts := append([]Option{
		WithBaseURL("http://api.internal:3001"),
		WithTransport(transport),
		WithClassifier(classifier),
		WithReporter(noopReporter{}),
	}, extra...)
	return New(opts...), classifier
}

func TestFirstAttemptSuccess(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{resp: okResponse(`{"items":[1,2,3]}`)},
	}}
	client, classifier := newTestClient(transport)

	responsePasses := 0
	client.UseResponse(ResponseInterceptor{
		OnResponse: func(_ *RequestConfig, resp *Response) (*Response, error) {
			responsePasses++
			return resp, nil
		},
	})

	resp, err := client.Get(context.Background(), "/api/recommend")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if transport.callCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", transport.callCount())
	}
	if classifier.delayCount() != 0 {
		t.Errorf("expected no retry waits, got %d", classifier.delayCount())
	}
	if responsePasses != 1 {
		t.Errorf("expected exactly one response-interceptor pass, got %d", responsePasses)
	}
	if transport.urlAt(0) != "http://api.internal:3001/api/recommend" {
		t.Errorf("unexpected URL: %s", transport.urlAt(0))
	}
	if client.IsLoadingFor("GET", "/api/recommend") {
		t.Error("loading flag should be false after completion")
	}
}

func TestServerErrorsThenSuccess(t *testing.T) {
	serverError := &Response{
		StatusCode: http.StatusInternalServerError,
		Header:     make(http.Header),
		Body:       json.RawMessage(`{"error":{"message":"boom","code":"X"}}`),
	}
	transport := &scriptedTransport{steps: []transportStep{
		{resp: serverError},
		{resp: serverError},
		{resp: okResponse(`{"ok":true}`)},
	}}
	client, classifier := newTestClient(transport)

	resp, err := client.Get(context.Background(), "/api/generate")
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := resp.Decode(&payload); err != nil || !payload.OK {
		t.Errorf("expected final 200 payload, got %s (err %v)", resp.Body, err)
	}
	if transport.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", transport.callCount())
	}
	if classifier.delayCount() != 2 {
		t.Errorf("expected exactly 2 retry waits, got %d", classifier.delayCount())
	}
}

func TestTimeoutExhaustsRetries(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{block: true},
	}}
	client, _ := newTestClient(transport,
		WithTimeout(10*time.Millisecond),
		WithMaxRetries(2),
	)

	_, err := client.Get(context.Background(), "/api/slow")
	if err == nil {
		t.Fatal("expected a terminal error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != CodeRequestTimeout {
		t.Errorf("expected code %s, got %s", CodeRequestTimeout, apiErr.Code)
	}
	if apiErr.StatusCode != http.StatusRequestTimeout {
		t.Errorf("expected status 408, got %d", apiErr.StatusCode)
	}
	if transport.callCount() != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", transport.callCount())
	}
}

func TestFallbackRewriteOnConnectionFailure(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{err: errors.New("dial tcp: connection refused")},
		{resp: okResponse(`{"ok":true}`)},
	}}
	client, classifier := newTestClient(transport)

	resp, err := client.Get(context.Background(), "/api/health")
	if err != nil {
		t.Fatalf("expected success on fallback origin, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if transport.callCount() != 2 {
		t.Fatalf("expected 2 transport calls, got %d", transport.callCount())
	}
	if transport.urlAt(0) != "http://api.internal:3001/api/health" {
		t.Errorf("first attempt hit unexpected URL %s", transport.urlAt(0))
	}
	if transport.urlAt(1) != defaultFallbackOrigin+"/api/health" {
		t.Errorf("fallback attempt hit unexpected URL %s", transport.urlAt(1))
	}
	// The rewrite replaces the attempt in place: no retry wait was awaited.
	if classifier.delayCount() != 0 {
		t.Errorf("rewrite must not consume the retry budget, got %d waits", classifier.delayCount())
	}
}

func TestFallbackHappensAtMostOnce(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{err: errors.New("connection refused")},
	}}
	client, _ := newTestClient(transport, WithMaxRetries(4))

	_, err := client.Get(context.Background(), "/api/health")
	if err == nil {
		t.Fatal("expected terminal failure")
	}

	// One initial attempt against the base origin, then every remaining
	// attempt sticks to the single rewritten origin.
	if transport.callCount() != 6 {
		t.Fatalf("expected 6 transport calls (1 + rewrite + 4 retries), got %d", transport.callCount())
	}
	if transport.urlAt(0) != "http://api.internal:3001/api/health" {
		t.Errorf("first attempt hit unexpected URL %s", transport.urlAt(0))
	}
	for i := 1; i < transport.callCount(); i++ {
		if transport.urlAt(i) != defaultFallbackOrigin+"/api/health" {
			t.Errorf("attempt %d hit unexpected URL %s", i, transport.urlAt(i))
		}
	}
}

func TestFallbackUsesRuntimeOrigin(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{err: errors.New("connection refused")},
		{resp: okResponse(`{}`)},
	}}
	client, _ := newTestClient(transport, WithOriginFunc(func() string {
		return "https://studio.lookbook.dev"
	}))

	if _, err := client.Get(context.Background(), "/api/likes"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if transport.urlAt(1) != "https://studio.lookbook.dev/api/likes" {
		t.Errorf("fallback ignored runtime origin: %s", transport.urlAt(1))
	}
}

func TestNoFallbackOnTimeoutByDefault(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{block: true},
	}}
	client, _ := newTestClient(transport,
		WithTimeout(10*time.Millisecond),
		WithMaxRetries(1),
	)

	_, err := client.Get(context.Background(), "/api/slow")
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	for i := 0; i < transport.callCount(); i++ {
		if transport.urlAt(i) != "http://api.internal:3001/api/slow" {
			t.Errorf("timeout must not trigger a rewrite by default, attempt %d hit %s", i, transport.urlAt(i))
		}
	}
}

func TestFallbackOnTimeoutWhenEnabled(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{block: true},
		{resp: okResponse(`{}`)},
	}}
	client, _ := newTestClient(transport,
		WithTimeout(10*time.Millisecond),
		WithFallbackOnTimeout(),
	)

	if _, err := client.Get(context.Background(), "/api/slow"); err != nil {
		t.Fatalf("expected success on fallback, got %v", err)
	}
	if transport.urlAt(1) != defaultFallbackOrigin+"/api/slow" {
		t.Errorf("expected fallback rewrite, got %s", transport.urlAt(1))
	}
}

func TestInterceptorHeaderRoundTrip(t *testing.T) {
	serverError := &Response{
		StatusCode: http.StatusInternalServerError,
		Header:     make(http.Header),
		Body:       json.RawMessage(`{}`),
	}
	okWithTrace := okResponse(`{}`)
	okWithTrace.Header.Set("X-Trace", "v1")

	transport := &scriptedTransport{steps: []transportStep{
		{resp: serverError},
		{resp: okWithTrace},
	}}
	client, _ := newTestClient(transport)

	client.UseRequest(RequestInterceptor{
		OnRequest: func(cfg *RequestConfig) (*RequestConfig, error) {
			cfg.Headers.Set("X-Trace", "v1")
			return cfg, nil
		},
	})
	client.UseResponse(ResponseInterceptor{
		OnResponse: func(_ *RequestConfig, resp *Response) (*Response, error) {
			resp.Header.Del("X-Trace")
			return resp, nil
		},
	})

	resp, err := client.Get(context.Background(), "/api/history")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if got := resp.Header.Get("X-Trace"); got != "" {
		t.Errorf("caller must never observe X-Trace, got %q", got)
	}
	for i := 0; i < transport.callCount(); i++ {
		transport.mu.Lock()
		observed := transport.headers[i].Get("X-Trace")
		transport.mu.Unlock()
		if observed != "v1" {
			t.Errorf("transport must observe X-Trace on attempt %d, got %q", i, observed)
		}
	}
}

func TestRequestInterceptorFailureIsNotRetried(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{resp: okResponse(`{}`)},
	}}
	client, classifier := newTestClient(transport)

	hookCalled := false
	boom := errors.New("bad signature")
	client.UseRequest(RequestInterceptor{
		OnRequest: func(_ *RequestConfig) (*RequestConfig, error) {
			return nil, boom
		},
		OnError: func(err error) {
			hookCalled = true
		},
	})

	_, err := client.Get(context.Background(), "/api/generate")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the interceptor error, got %v", err)
	}
	if !hookCalled {
		t.Error("OnError hook was not invoked")
	}
	if transport.callCount() != 0 {
		t.Errorf("request never reached the network, yet transport saw %d calls", transport.callCount())
	}
	if classifier.delayCount() != 0 {
		t.Errorf("construction failures must not be retried, got %d waits", classifier.delayCount())
	}
}

func TestResponseErrorInterceptorCanReplaceError(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{resp: &Response{StatusCode: http.StatusBadGateway, Header: make(http.Header), Body: json.RawMessage(`{}`)}},
	}}
	client, _ := newTestClient(transport, WithMaxRetries(0))

	client.UseResponse(ResponseInterceptor{
		OnError: func(_ *RequestConfig, apiErr *APIError) *APIError {
			return &APIError{
				Message:    apiErr.Message,
				StatusCode: apiErr.StatusCode,
				Code:       ErrorCode("UPSTREAM_DOWN"),
				Cause:      apiErr,
			}
		},
	})

	_, err := client.Get(context.Background(), "/api/recommend")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "UPSTREAM_DOWN" {
		t.Errorf("expected replaced code, got %s", apiErr.Code)
	}
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{resp: &Response{StatusCode: http.StatusNotFound, Header: make(http.Header), Body: json.RawMessage(`not json`)}},
	}}
	client, classifier := newTestClient(transport, WithMaxRetries(5))

	_, err := client.Get(context.Background(), "/api/missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != CodeHTTPError {
		t.Errorf("expected %s, got %s", CodeHTTPError, apiErr.Code)
	}
	if apiErr.Message != "HTTP 404: Not Found" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
	if transport.callCount() != 1 {
		t.Errorf("non-retryable error must stop after 1 attempt, got %d", transport.callCount())
	}
	if classifier.delayCount() != 0 {
		t.Errorf("expected no retry waits, got %d", classifier.delayCount())
	}
}

func TestLoadingLifecycle(t *testing.T) {
	serverError := &Response{
		StatusCode: http.StatusInternalServerError,
		Header:     make(http.Header),
		Body:       json.RawMessage(`{}`),
	}
	transport := &scriptedTransport{steps: []transportStep{
		{resp: serverError},
		{resp: serverError},
		{resp: okResponse(`{}`)},
	}}
	client, _ := newTestClient(transport)

	var mu sync.Mutex
	var notifications []map[string]bool
	unsubscribe := client.OnLoadingChange(func(snapshot map[string]bool) {
		mu.Lock()
		notifications = append(notifications, snapshot)
		mu.Unlock()
	})
	defer unsubscribe()

	if _, err := client.Post(context.Background(), "/api/generate", map[string]string{"prompt": "x"}); err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// One notification at call start, one at the terminal transition, none
	// per individual attempt.
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}
	if !notifications[0]["POST_/api/generate"] {
		t.Error("first notification should carry the busy flag")
	}
	if len(notifications[1]) != 0 {
		t.Errorf("terminal notification should be empty, got %v", notifications[1])
	}
	if client.IsLoading() {
		t.Error("IsLoading() should be false after completion")
	}
}

func TestLoadingClearedOnExhaustion(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{err: errors.New("connection refused")},
	}}
	client, _ := newTestClient(transport, WithMaxRetries(1))

	if _, err := client.Delete(context.Background(), "/api/likes/42"); err == nil {
		t.Fatal("expected terminal failure")
	}
	if client.IsLoadingFor("DELETE", "/api/likes/42") {
		t.Error("loading flag must clear on exhaustion")
	}
	if client.IsLoading() {
		t.Error("IsLoading() must be false after exhaustion")
	}
}

func TestRetryWaitAbortsOnContextCancel(t *testing.T) {
	transport := &scriptedTransport{steps: []transportStep{
		{err: errors.New("connection refused")},
	}}
	slow := &slowClassifier{delay: time.Second}
	client := New(
		WithBaseURL("http://api.internal:3001"),
		WithTransport(transport),
		WithClassifier(slow),
		WithReporter(noopReporter{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Get(ctx, "/api/health")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not abort after context cancellation")
	}
}

type slowClassifier struct {
	delay time.Duration
}

func (p *slowClassifier) IsRetryable(*APIError) bool { return true }

func (p *slowClassifier) RetryDelay(*APIError, int) time.Duration { return p.delay }
