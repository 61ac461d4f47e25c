package van

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors matched by APIError via errors.Is.
var (
	ErrNotFound     = errors.New("van: not found")
	ErrUnauthorized = errors.New("van: unauthorized")
	ErrConflict     = errors.New("van: conflict")
	ErrBadRequest   = errors.New("van: bad request")
)

const maxErrorBodyBytes = 512

// APIError is returned for any non-2xx response from the VAN API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func newAPIError(method, url string, status int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       readBodySnippet(body),
	}
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("van %s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("van %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Is maps HTTP status classes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

func readBodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(body))
}
