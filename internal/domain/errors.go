package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling in handlers.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorageIO indicates the persistence medium rejected a write (disk
	// full, permissions). The previously persisted state is left intact.
	ErrStorageIO = errors.New("storage write failed")

	// ErrStorageCorrupt indicates a persisted transcript could not be parsed.
	// Stores treat this as an empty transcript and never propagate it to a
	// request; it exists for logging and tests.
	ErrStorageCorrupt = errors.New("storage record corrupt")

	// ErrContentFiltered indicates the model provider refused the request on
	// content-policy grounds. Recoverable: callers substitute a fixed apology.
	ErrContentFiltered = errors.New("content filtered by model provider")

	// ErrTransport indicates a network or provider-availability failure
	// reaching the model API.
	ErrTransport = errors.New("model provider unreachable")
)
