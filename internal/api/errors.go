package api

import (
	"errors"
	"net/http"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/executor"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
)

// Error codes for consistent error identification.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeValidation      = "validation_failed"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnprocessable   = "unprocessable_template"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternalError   = "internal_error"
	ErrCodeServiceUnavail  = "service_unavailable"
	ErrCodeRequestTooLarge = "request_too_large"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error     string `json:"error"`                // Human-readable message
	Code      string `json:"code,omitempty"`       // Short error code
	Details   any    `json:"details,omitempty"`    // Cause or validation errors
	RequestID string `json:"request_id,omitempty"` // Request ID for correlation
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, executor.ErrTopicRequired):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrTemplateNotFound),
		errors.Is(err, templatestore.ErrTemplateNotFound),
		errors.Is(err, recorder.ErrExecutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrEmptyTemplate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusToErrorCode maps HTTP status codes to error codes.
func HTTPStatusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusUnprocessableEntity:
		return ErrCodeUnprocessable
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusRequestEntityTooLarge:
		return ErrCodeRequestTooLarge
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	default:
		return ErrCodeInternalError
	}
}
