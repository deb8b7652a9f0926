package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/pointlab/pointlab/internal/archive"
	"github.com/pointlab/pointlab/internal/cluster"
	"github.com/pointlab/pointlab/internal/session"
)

// APIError represents an error with an associated HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, message)
}

// ErrUnauthorized returns a 401 Unauthorized error.
func ErrUnauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, message)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, message)
}

// ErrPayloadTooLarge returns a 413 Payload Too Large error.
func ErrPayloadTooLarge(message string) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, message)
}

// ErrTooManyRequests returns a 429 Too Many Requests error.
func ErrTooManyRequests(message string) *APIError {
	return NewAPIError(http.StatusTooManyRequests, message)
}

// ErrInternalServer returns a 500 Internal Server Error.
func ErrInternalServer(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message)
}

// ErrServiceUnavailable returns a 503 Service Unavailable error.
func ErrServiceUnavailable(message string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, message)
}

// ErrTimeout returns a 504 error when clustering exceeds its time budget.
func ErrTimeout() *APIError {
	return NewAPIError(http.StatusGatewayTimeout, "clustering exceeded the request timeout")
}

// ErrInvalidJSON returns a 400 error for invalid JSON.
func ErrInvalidJSON() *APIError {
	return ErrBadRequest("invalid JSON in request body")
}

// ErrRateLimited returns a 429 error for rate limiting.
func ErrRateLimited() *APIError {
	return ErrTooManyRequests("rate limit exceeded; try again later")
}

// ErrArchiveDisabled returns a 503 error when run persistence is not configured.
func ErrArchiveDisabled() *APIError {
	return ErrServiceUnavailable("run archive is not enabled")
}

// toAPIError maps domain errors onto HTTP statuses. Unknown errors are 500s.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, cluster.ErrInvalidArgument),
		errors.Is(err, cluster.ErrInvalidOption),
		errors.Is(err, session.ErrInvalidName),
		errors.Is(err, archive.ErrInvalidID),
		errors.Is(err, archive.ErrInvalidLabel):
		return ErrBadRequest(err.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, archive.ErrNotFound):
		return ErrNotFound(err.Error())
	case errors.Is(err, session.ErrTooManySessions):
		return ErrTooManyRequests(err.Error())
	case errors.Is(err, session.ErrTooManyPoints):
		return ErrPayloadTooLarge(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout()
	default:
		return ErrInternalServer(err.Error())
	}
}
