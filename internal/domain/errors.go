package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling (OCP compliance).
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
)

// Error implementations
func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// Is allows errors.Is() to match against the corresponding sentinels.
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")

	// ErrConfirmationRequired is returned by destructive operations that
	// were invoked without explicit user confirmation. The empty-block
	// cancel path is the one caller allowed to skip it.
	ErrConfirmationRequired = errors.New("confirmation required")

	// Editor interaction sentinels. Handlers treat most of these as
	// silent no-ops per the best-effort editing contract.
	ErrSessionNotFound   = errors.New("edit session not found")
	ErrNoEditSurface     = errors.New("block is not being edited")
	ErrNoActiveSelection = errors.New("no active selection")
	ErrNoImageSelected   = errors.New("no inline image selected")

	// ErrRangeUnwrappable reports that a selection range crosses element
	// boundaries that cannot be wrapped in a marker; callers degrade to
	// the cloned range.
	ErrRangeUnwrappable = errors.New("range cannot be wrapped")
)

// ConflictError represents a resource conflict with details about the existing resource
// Implements HTTPError interface for extensible error handling
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (page, block, attachment)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ConfirmationRequiredError carries the resource awaiting confirmation so
// clients can render the prompt.
type ConfirmationRequiredError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConfirmationRequiredError) Error() string {
	return e.Message
}

func (e *ConfirmationRequiredError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConfirmationRequired
func (e *ConfirmationRequiredError) Is(target error) bool {
	return target == ErrConfirmationRequired
}
