// Package service orchestrates the access kernel: tenant checks, permission
// resolution, flag evaluation and the admin mutation surface. Services own
// validation and audit emission; repositories own persistence.
package service

import (
	"context"

	stderrors "errors"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// TenantGuard enforces tenant isolation for scoped operations.
type TenantGuard interface {
	Authorize(ctx context.Context, operation, resourceTenantID string) error
}

// PermissionResolver resolves hierarchical permissions.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID, nodeID, permission string) (domain.Decision, error)
	EffectivePermissions(ctx context.Context, userID, nodeID string) ([]string, error)
}

// Recorder receives audit events.
type Recorder interface {
	Record(eventType string, data interface{})
}

// AccessService is the read side of the kernel: isolation checks and
// permission resolution.
type AccessService struct {
	guard    TenantGuard
	resolver PermissionResolver
	audit    Recorder
	logger   *logger.Logger
}

// NewAccessService creates a new access service
func NewAccessService(guard TenantGuard, resolver PermissionResolver, audit Recorder, log *logger.Logger) *AccessService {
	return &AccessService{
		guard:    guard,
		resolver: resolver,
		audit:    audit,
		logger:   log.WithComponent("access-service"),
	}
}

// Authorize checks tenant isolation for an operation against a resource.
func (s *AccessService) Authorize(ctx context.Context, operation, resourceTenantID string) error {
	return s.guard.Authorize(ctx, operation, resourceTenantID)
}

// Resolve decides whether the user holds the permission at the node. A
// corrupted hierarchy denies and raises a high-severity corruption event for
// monitoring; the caller only ever sees access denied.
func (s *AccessService) Resolve(ctx context.Context, userID, nodeID, permission string) (domain.Decision, error) {
	decision, err := s.resolver.Resolve(ctx, userID, nodeID, permission)
	if err != nil {
		s.reportCorruption(ctx, nodeID, err)
		return domain.DecisionDenied, err
	}
	return decision, nil
}

// EffectivePermissions lists the concrete permissions the user holds at the node.
func (s *AccessService) EffectivePermissions(ctx context.Context, userID, nodeID string) ([]string, error) {
	perms, err := s.resolver.EffectivePermissions(ctx, userID, nodeID)
	if err != nil {
		s.reportCorruption(ctx, nodeID, err)
		return nil, err
	}
	return perms, nil
}

func (s *AccessService) reportCorruption(ctx context.Context, nodeID string, err error) {
	if !stderrors.Is(err, errors.ErrHierarchyCorruption) {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)
	s.logger.Error().Err(err).Str("node_id", nodeID).Msg("hierarchy corruption detected during resolution")
	s.audit.Record(messaging.EventHierarchyCorrupt, messaging.HierarchyCorruptionEvent{
		NodeID:   nodeID,
		Reason:   err.Error(),
		TenantID: tenantID,
	})
}
