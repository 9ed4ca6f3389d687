package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure reported by the backend itself.
type Error struct {
	Status  int
	Type    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Type == "" {
		return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend %d (%s): %s", e.Status, e.Type, e.Message)
}

func NewError(status int, typ, message string) *Error {
	return &Error{Status: status, Type: typ, Message: message}
}

func NotFound(message string) *Error {
	return NewError(http.StatusNotFound, "not_found", message)
}

func StatusOf(err error) int {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Status
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
