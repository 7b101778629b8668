package intervals

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the upstream API, carrying the
// status code and a snippet of the response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// IsValidation reports whether err is an upstream validation failure
// (the request's parameters were unprocessable).
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity
}

// IsNotFound reports whether err is an upstream not-found failure.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
