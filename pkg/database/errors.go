package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
	apperrors "github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *apperrors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return apperrors.Conflict(constraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return apperrors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return apperrors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		// Class 08 - connection exceptions
		if pqErr.Code.Class() == "08" {
			return apperrors.StoreUnavailable(err)
		}
		return nil
	}
}

// constraintMessage creates a user-friendly message for unique constraint violations.
func constraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "flag_key"):
		return "a feature flag with this key already exists"
	case strings.Contains(pqErr.Constraint, "permission_overrides"):
		return "an active override already exists for this user, node and permission"
	case strings.Contains(pqErr.Constraint, "role_assignments"):
		return "an active role assignment already exists for this node and role"
	default:
		return "a record with these values already exists"
	}
}

// IsUnavailable reports whether err means the backing store is unreachable.
// Kernel callers treat this as the fail-closed trigger.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57"
	}
	return false
}
