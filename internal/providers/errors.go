package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnsupportedProvider is wrapped by UnsupportedProviderError.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrEmptyResponse marks a backend reply with no usable text. It is
	// retryable so that a model chain can move on.
	ErrEmptyResponse = errors.New("empty response")
)

// UnsupportedProviderError is returned by the factory for unknown types.
type UnsupportedProviderError struct {
	Type string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Type)
}

func (e *UnsupportedProviderError) Unwrap() error { return ErrUnsupportedProvider }

// ConnectionError reports a transport failure, or a rejected request from
// the local backend.
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx reply from a cloud backend.
type HTTPError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Provider, e.Model, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Auth reports whether the backend rejected the credentials.
func (e *HTTPError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Retryable reports whether switching to another model might succeed.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable:
		return true
	}
	if e.Auth() {
		return false
	}
	return strings.Contains(strings.ToLower(e.Message), "quota")
}

// AllModelsExhaustedError is returned when every candidate in a model chain
// failed with a retryable error.
type AllModelsExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *AllModelsExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d models failed, last error: %v", e.Provider, e.Attempts, e.Last)
}

func (e *AllModelsExhaustedError) Unwrap() error { return e.Last }

// IsRetryable classifies err for the model downgrade chain. Only the
// distinguished empty-response condition and retryable HTTP statuses
// qualify; anything else, including auth and transport failures, is
// terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return false
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Auth()
}

// friendlyHTTPError turns a raw error body into a short message.
func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
