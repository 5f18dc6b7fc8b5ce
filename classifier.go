package apiclient

import (
	"net/http"
	"time"

	"github.com/myoungjelee/AI-Lookbook-Studio-sub000/internal/backoff"
)

// ErrorClassifier is the swappable retry policy consumed by the retry engine.
// The engine treats it as opaque: it never assumes a particular backoff shape.
type ErrorClassifier interface {
	// IsRetryable reports whether another attempt may succeed.
	IsRetryable(apiErr *APIError) bool
	// RetryDelay returns the wait before the given zero-based attempt is
	// retried.
	RetryDelay(apiErr *APIError, attempt int) time.Duration
}

// DefaultClassifier retries network failures, timeouts, HTTP 5xx and 429,
// with exponential backoff plus uniform jitter.
type DefaultClassifier struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	Strategy       backoff.Strategy
}

// NewDefaultClassifier returns the stock policy: 300ms initial delay doubling
// up to 10s, 20% jitter.
func NewDefaultClassifier() *DefaultClassifier {
	return &DefaultClassifier{
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		Strategy:       backoff.ExponentialJitter{},
	}
}

// IsRetryable implements ErrorClassifier.
func (p *DefaultClassifier) IsRetryable(apiErr *APIError) bool {
	if apiErr == nil {
		return false
	}
	switch apiErr.Code {
	case CodeNetworkError, CodeRequestTimeout:
		return true
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return apiErr.StatusCode >= 500
}

// RetryDelay implements ErrorClassifier.
func (p *DefaultClassifier) RetryDelay(_ *APIError, attempt int) time.Duration {
	strategy := p.Strategy
	if strategy == nil {
		strategy = backoff.ExponentialJitter{}
	}
	return strategy.Calculate(attempt, p.InitialBackoff, p.MaxBackoff, p.Multiplier, p.Jitter)
}
