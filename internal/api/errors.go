package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNetwork wraps failures where no HTTP response was received
var ErrNetwork = errors.New("network error")

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// UserMessage is the text shown to the user for this error
func (e *APIError) UserMessage() string {
	switch e.Status {
	case http.StatusForbidden:
		return "You are not allowed to do that."
	case http.StatusNotFound:
		return "The item you are looking for was not found."
	case http.StatusUnprocessableEntity:
		return "Please check the form: some fields are invalid."
	case http.StatusUnauthorized:
		return "Your session has expired. Please log in again."
	}
	if e.Status >= 500 {
		return "Something went wrong on our side. Please try again later."
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// UserMessage maps any client error to user-facing text
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.UserMessage()
	case errors.Is(err, ErrNetwork):
		return "Cannot reach the server. Check your connection."
	default:
		return "Unexpected error."
	}
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
