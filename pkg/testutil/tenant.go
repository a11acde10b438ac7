package testutil

import (
	"context"

	"github.com/zebra-devops/marketedge-access-kernel/pkg/actor"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// Well-known identifiers used across kernel tests.
const (
	TestTenantID  = "11111111-1111-1111-1111-111111111111"
	OtherTenantID = "22222222-2222-2222-2222-222222222222"
	TestUserID    = "33333333-3333-3333-3333-333333333333"
)

// ScopedContext returns a context carrying a tenant scope for tests.
func ScopedContext(tenantID, userID string, role tenant.Role) context.Context {
	return tenant.WithScope(context.Background(), tenant.Scope{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
	})
}

// TenantContext returns a context scoped to the standard test tenant and user.
func TenantContext() context.Context {
	return ScopedContext(TestTenantID, TestUserID, tenant.RoleOrgAdmin)
}

// CrossTenantContext returns a super_admin scope with cross-tenant access enabled.
func CrossTenantContext(tenantID, userID string) context.Context {
	return tenant.WithScope(context.Background(), tenant.Scope{
		TenantID:         tenantID,
		UserID:           userID,
		Role:             tenant.RoleSuperAdmin,
		AllowCrossTenant: true,
	})
}

// ActorContext attaches a test actor on top of the standard tenant scope.
func ActorContext(actorID string) context.Context {
	return actor.WithActor(TenantContext(), &actor.Actor{
		ID:       actorID,
		Email:    actorID + "@example.test",
		TenantID: TestTenantID,
	})
}
