package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a portal response lacks a required field.
var ErrMalformedResponse = errors.New("malformed portal response")

// StatusError is returned when the portal answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("portal returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("portal returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps a failure to reach the portal at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a 401 or 403 from the portal.
func IsAuthError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
}

// IsTransportError reports whether err means the portal could not be reached.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsServerError reports whether err is a 5xx from the portal.
func IsServerError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= http.StatusInternalServerError
}
