// Package tenant carries the per-request tenant scope through context.Context.
//
// The scope is set once by the request-dispatch layer after authentication and
// read by every tenant-scoped data access. It is never stored in a package
// variable: request-scoped context values are the only propagation mechanism,
// so concurrent requests sharing a worker can never observe each other's tenant.
package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const scopeKey contextKey = "tenant_scope"

var (
	// ErrNoTenantInContext is returned when tenant context is missing
	ErrNoTenantInContext = errors.New("no tenant in context")
)

// Role is the caller's coarse role within the platform.
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleOrgAdmin        Role = "org_admin"
	RoleLocationManager Role = "location_manager"
	RoleDepartmentLead  Role = "department_lead"
	RoleUser            Role = "user"
	RoleViewer          Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrgAdmin, RoleLocationManager, RoleDepartmentLead, RoleUser, RoleViewer:
		return true
	}
	return false
}

// Scope is the active tenant scope for one request.
type Scope struct {
	// TenantID is the opaque tenant identifier. Required for all scoped operations.
	TenantID string

	// UserID identifies the principal. Used for permission resolution and
	// denial attribution, not for isolation decisions.
	UserID string

	// Role is the principal's coarse role.
	Role Role

	// AllowCrossTenant permits a super_admin to read outside its own tenant.
	// Must be set explicitly per call chain; defaults to false.
	AllowCrossTenant bool
}

// WithScope attaches a tenant scope to the context.
// This should be called by middleware after extracting claims from the token.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// WithTenantID attaches a scope holding only the tenant ID.
// Used by background jobs that act within a single tenant.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return WithScope(ctx, Scope{TenantID: tenantID})
}

// FromContext extracts the tenant scope from the context.
// The second return value is false when no scope was set.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}

// TenantID extracts the tenant ID from context.
// Returns ErrNoTenantInContext if no scope is set or the tenant ID is empty.
func TenantID(ctx context.Context) (string, error) {
	s, ok := FromContext(ctx)
	if !ok || s.TenantID == "" {
		return "", ErrNoTenantInContext
	}
	return s.TenantID, nil
}

// UserID extracts the principal's user ID from context, empty when unset.
func UserID(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.UserID
}

// MustTenantID extracts the tenant ID from context and panics if not found.
// Use only in cases where missing tenant is a programming error.
func MustTenantID(ctx context.Context) string {
	id, err := TenantID(ctx)
	if err != nil {
		panic("tenant ID not found in context")
	}
	return id
}
