package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ValidationError reports an invalid EventInput. No remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RemoteError is a non-2xx answer from the Calendar API. Body holds the raw
// response body, usually a JSON error document.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("calendar API error (status %d): %s", e.Status, e.Body)
}

// NotFoundError is returned when the event does not exist or was already deleted.
type NotFoundError struct {
	RemoteError
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event %q not found (status %d)", e.ID, e.Status)
}

// Unwrap exposes the embedded RemoteError to errors.As.
func (e *NotFoundError) Unwrap() error {
	return &e.RemoteError
}

// toRemoteError converts a failed API call into a *RemoteError. Deadline
// expiry maps to 504 with the context error as body; transport failures
// map to 502.
func toRemoteError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return &RemoteError{Status: gerr.Code, Body: body}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RemoteError{Status: http.StatusGatewayTimeout, Body: context.DeadlineExceeded.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &RemoteError{Status: http.StatusBadGateway, Body: err.Error()}
}

func isNotFound(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) && (re.Status == http.StatusNotFound || re.Status == http.StatusGone) {
		return re, true
	}
	return nil, false
}
