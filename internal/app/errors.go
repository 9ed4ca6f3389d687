package app

import (
	"errors"
	"fmt"
	"net/http"

	"tasktree/api/internal/access"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
	"tasktree/api/internal/model"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", cfgErr.Error(), map[string]any{"missing": cfgErr.Missing}
	}
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message, map[string]any{"field": validationErr.Field}
	}
	if errors.Is(err, access.ErrUnauthenticated) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil
	}
	if errors.Is(err, access.ErrForbidden) {
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	}
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		switch backendErr.Status {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil
		case http.StatusNotFound:
			return http.StatusNotFound, "NOT_FOUND", "Not found", nil
		case http.StatusConflict:
			return http.StatusConflict, "CONFLICT", backendErr.Message, nil
		}
		return http.StatusBadRequest, "UPSTREAM_ERROR", "Backend API error: " + backendErr.Message, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
