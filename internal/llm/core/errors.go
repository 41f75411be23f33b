package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates missing or malformed provider request input.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrMissingAPIKey indicates missing provider credentials.
	ErrMissingAPIKey = errors.New("missing api key")
	// ErrUnknownProvider indicates a provider name absent from the registry.
	// It is raised synchronously, before any network I/O.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrEmptyResponse indicates the provider returned a 2xx with no usable
	// content. Distinct from HTTP failures so callers can tell "model gave
	// nothing" apart from transport errors.
	ErrEmptyResponse = errors.New("empty provider response")
	// ErrMaxIterations indicates an agent loop ran out of its iteration budget.
	ErrMaxIterations = errors.New("exceeded maximum iterations")
)

// HTTPError is a transport failure surfaced from a provider endpoint.
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying (rate limits and
// server-side failures).
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AsHTTPError unwraps err into an *HTTPError when possible.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
