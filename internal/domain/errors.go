// Package domain holds the error vocabulary shared by storage, server and session.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that knows its HTTP status.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors; match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
	ErrCycle      = errors.New("move would create a cycle")
	ErrTooLarge   = errors.New("payload too large")
)

// NotFoundError reports a missing library or document.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string   { return e.Message }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a uniqueness or structural conflict.
type ConflictError struct {
	Message string
	cause   error
}

func (e *ConflictError) Error() string   { return e.Message }
func (e *ConflictError) StatusCode() int { return http.StatusConflict }

// Is matches ErrConflict, and ErrCycle when the conflict is a cycle.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || (e.cause != nil && target == e.cause)
}

// NewCycleError returns the conflict reported when a reparent would loop.
func NewCycleError(id, parentID int64) error {
	return &ConflictError{
		Message: fmt.Sprintf("cannot move document %d under %d: %v", id, parentID, ErrCycle),
		cause:   ErrCycle,
	}
}

// NewConflictError returns a plain conflict with message.
func NewConflictError(message string) error {
	return &ConflictError{Message: message}
}

// NotFound is shorthand for a *NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Invalid is shorthand for a *ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// StatusOf maps err to an HTTP status, defaulting to 500.
func StatusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCycle):
		return http.StatusConflict
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
