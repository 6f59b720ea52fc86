package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/pushtasks/internal/config"
)

// Dispatch errors. Each is raised before any task result is created.
var (
	// ErrUnauthenticated is returned when the authenticator rejected the request.
	ErrUnauthenticated = errors.New("request not authenticated")

	// ErrMalformedBody is returned when the body is not a single JSON value.
	ErrMalformedBody = errors.New("malformed request body")

	// ErrBodyTooLarge is returned when the body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrInvalidEnvelope is returned when the body or the queue headers do not
	// have the expected shape.
	ErrInvalidEnvelope = errors.New("invalid task envelope")

	// ErrSuspiciousTask is returned when task_path does not name a registered
	// task. It suggests a misconfigured or hostile caller.
	ErrSuspiciousTask = errors.New("suspicious task path")
)

// MapErrorToStatusCode maps dispatch errors to HTTP status codes without
// leaking their details to the caller.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, ErrMalformedBody),
		errors.Is(err, ErrInvalidEnvelope),
		errors.Is(err, ErrSuspiciousTask):
		return http.StatusBadRequest

	// Configuration errors and anything unexpected
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, ErrBodyTooLarge):
		return "Request body too large"
	case errors.Is(err, ErrMalformedBody):
		return "Malformed JSON body"
	case errors.Is(err, ErrInvalidEnvelope):
		return "Invalid task envelope"
	case errors.Is(err, ErrSuspiciousTask):
		return "Unknown task"
	case errors.Is(err, config.ErrImproperlyConfigured):
		return "Task service is misconfigured"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message naming
// the offending JSON fields, without Go type names.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("Invalid %s: %s", jsonFieldName(fe.Field()), getValidationTagMessage(fe.Tag())))
	}
	return strings.Join(msgs, "; ")
}

// jsonFieldName converts a Go field name to the snake_case name used on the wire.
func jsonFieldName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	default:
		return "validation failed"
	}
}
