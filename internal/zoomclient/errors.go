package zoomclient

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials means the server-to-server app is not configured. It is never retried.
var ErrMissingCredentials = errors.New("zoomclient: missing account credentials")

// ConfigError reports a fatal configuration problem.
type ConfigError struct {
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %v", e.Err, e.Missing)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// APIError carries a non-2xx response from the token or meetings endpoint.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoomclient: API error (status %d) from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// IsFatalConfig reports whether err is a configuration error that retrying cannot fix.
func IsFatalConfig(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
