package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	// Negotiation errors
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnauthorized      = errors.New("role not allowed to act on offer in its current state")
	ErrForbidden         = errors.New("forbidden")
	ErrBusy              = errors.New("offer is busy, retry later")
)

// APIError represents a structured API error
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common API errors
func NotFound(resource string) *APIError {
	return NewAPIError("not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func BadRequest(message string) *APIError {
	return NewAPIError("bad_request", message, http.StatusBadRequest)
}

func InternalError(message string) *APIError {
	return NewAPIError("internal_error", message, http.StatusInternalServerError)
}

func Unauthenticated(message string) *APIError {
	return NewAPIError("unauthenticated", message, http.StatusUnauthorized)
}

func IdempotencyConflict() *APIError {
	return NewAPIError("idempotency_conflict", "idempotency key already used with different request", http.StatusConflict)
}

func InvalidPrice(message string) *APIError {
	return NewAPIError("invalid_price", message, http.StatusBadRequest)
}

func InvalidTransition(message string) *APIError {
	return NewAPIError("invalid_transition", message, http.StatusConflict)
}

func Unauthorized(message string) *APIError {
	return NewAPIError("unauthorized", message, http.StatusForbidden)
}

func Forbidden(message string) *APIError {
	return NewAPIError("forbidden", message, http.StatusForbidden)
}

func Busy() *APIError {
	return NewAPIError("busy", "offer is being updated by another request, retry later", http.StatusServiceUnavailable)
}

// FromError maps a service error onto its API representation. Errors that
// wrap one of the sentinels keep the wrapped message so callers see context.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrInvalidPrice):
		return InvalidPrice(err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return InvalidTransition(err.Error())
	case errors.Is(err, ErrUnauthorized):
		return Unauthorized(err.Error())
	case errors.Is(err, ErrForbidden):
		return Forbidden(err.Error())
	case errors.Is(err, ErrNotFound):
		return NewAPIError("not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrBusy):
		return Busy()
	case errors.Is(err, ErrBadRequest):
		return BadRequest(err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return Unauthenticated(err.Error())
	case errors.Is(err, ErrIdempotencyConflict):
		return IdempotencyConflict()
	default:
		return InternalError("internal server error")
	}
}
