package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a 2xx response carries no readable
// acknowledgement. The batch counts as not yet acknowledged.
var ErrMalformedResponse = errors.New("malformed acknowledgement")

// HTTPError represents a non-2xx response from the upload API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upload failed with status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401 from the upload API
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsServerError reports whether err is a 5xx from the upload API
func IsServerError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode >= 500
}

func hasStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
