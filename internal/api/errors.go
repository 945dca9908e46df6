package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized marks a 401 response. By the time a caller sees it the
// transport has already cleared the stored credential; what happens next
// (re-login, prompt, exit) is the caller's policy, not the transport's.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the Chatty backend.
type Error struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Message is the server-supplied "message" field, when present.
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: request failed (status %d)", e.StatusCode)
}

func (e *Error) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// ErrorMessage returns the server-supplied message carried by err, or ""
// when err is not an API error or carries no message.
func ErrorMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
