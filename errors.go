package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode classifies an APIError. Interceptors may substitute a custom code
// when they replace an error; the retry engine only switches on the values below.
type ErrorCode string

const (
	// CodeNetworkError means no HTTP response was obtained (StatusCode 0).
	CodeNetworkError ErrorCode = "NETWORK_ERROR"
	// CodeRequestTimeout means the attempt was cancelled by its timer (StatusCode 408).
	CodeRequestTimeout ErrorCode = "REQUEST_TIMEOUT"
	// CodeHTTPError means a response arrived with a non-2xx status and the
	// server supplied no more specific code.
	CodeHTTPError ErrorCode = "HTTP_ERROR"
)

// APIError is the single error type surfaced by the client. It is immutable
// once constructed: response-error interceptors that want to adjust
// classification must build a replacement rather than mutate in place.
type APIError struct {
	Message string
	// StatusCode is the HTTP status, or 0 when no response was obtained.
	StatusCode int
	Code       ErrorCode
	// Details carries the raw server error payload when one was present.
	Details json.RawMessage
	Cause   error
}

// Error implements error.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error codes for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// IsNetworkClass reports whether the error never produced an HTTP response or
// was cut off by the attempt timer. These are the failures the fallback router
// reacts to.
func (e *APIError) IsNetworkClass() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeNetworkError || e.Code == CodeRequestTimeout
}

// serverErrorEnvelope is the error payload shape the backend emits on non-2xx
// responses: {"error":{"message":"...","code":"..."}}.
type serverErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// errorFromResponse builds an APIError for a non-2xx response. The body is
// parsed defensively: a malformed payload degrades to the generic
// "HTTP <status>: <statusText>" message instead of failing the classification.
func errorFromResponse(resp *Response) *APIError {
	var envelope serverErrorEnvelope
	_ = json.Unmarshal(resp.Body, &envelope)

	message := envelope.Error.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	code := CodeHTTPError
	if envelope.Error.Code != "" {
		code = ErrorCode(envelope.Error.Code)
	}

	var details json.RawMessage
	if len(resp.Body) > 0 {
		details = resp.Body
	}

	return &APIError{
		Message:    message,
		StatusCode: resp.StatusCode,
		Code:       code,
		Details:    details,
	}
}
