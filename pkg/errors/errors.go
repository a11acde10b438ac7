package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")
	ErrBadRequest = errors.New("bad request")

	// Kernel error taxonomy.

	// ErrTenantMismatch is a routine authorization denial: the resource belongs
	// to a different tenant than the active scope. Not a bug.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrHierarchyCorruption signals a violated structural invariant in the
	// organizational tree (bad depth or path). Fatal for the affected subtree.
	ErrHierarchyCorruption = errors.New("hierarchy corruption")

	// ErrStoreUnavailable signals that the backing store is unreachable.
	// All kernel decisions fail closed when this occurs.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidOverride signals conflicting or malformed override data,
	// rejected at write time before persistence.
	ErrInvalidOverride = errors.New("invalid override")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// TenantMismatch creates the routine denial returned when a caller touches a
// resource outside its tenant scope. User-visible behavior is a plain 403.
func TenantMismatch(operation string) *AppError {
	return &AppError{
		Err:        ErrTenantMismatch,
		Code:       "TENANT_MISMATCH",
		Message:    "access denied",
		StatusCode: http.StatusForbidden,
		Details:    map[string]string{"operation": operation},
	}
}

// HierarchyCorruption creates the fatal error raised when the organizational
// tree violates its depth/path invariants.
func HierarchyCorruption(nodeID, reason string) *AppError {
	return &AppError{
		Err:        ErrHierarchyCorruption,
		Code:       "HIERARCHY_CORRUPTION",
		Message:    "access denied",
		StatusCode: http.StatusForbidden,
		Details:    map[string]string{"node_id": nodeID, "reason": reason},
	}
}

// StoreUnavailable wraps a backing-store failure. Callers must treat the
// associated decision as the fail-closed default.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrStoreUnavailable, err),
		Code:       "STORE_UNAVAILABLE",
		Message:    "feature unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// InvalidOverride rejects conflicting or malformed override data at write time.
func InvalidOverride(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidOverride,
		Code:       "INVALID_OVERRIDE",
		Message:    "invalid override",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
