package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-queue/internal/store"
	"github.com/phrazzld/scry-queue/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrUnknownType):
		return http.StatusNotFound

	case errors.Is(err, task.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrUnknownType):
		return "Unknown task type"
	case errors.Is(err, task.ErrValidation):
		return "Invalid task"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid task data"
	case errors.Is(err, store.ErrDuplicate):
		return "Task already exists"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator output into a short message
// naming the first offending field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "printascii", "excludesall":
		return "invalid characters"
	default:
		return "validation failed"
	}
}
