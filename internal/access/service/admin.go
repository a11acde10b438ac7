package service

import (
	"context"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/actor"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/permissions"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// actorID resolves the acting principal, falling back to the system actor
// for background operations.
func actorID(ctx context.Context) string {
	if a := actor.FromContext(ctx); a != nil {
		return a.ID
	}
	return actor.SystemActor().ID
}

// HierarchyStore persists hierarchy nodes.
type HierarchyStore interface {
	Create(ctx context.Context, node *domain.HierarchyNode) error
	GetByID(ctx context.Context, id string) (*domain.HierarchyNode, error)
	Deactivate(ctx context.Context, id string) error
}

// AssignmentStore persists role assignments and user placements.
type AssignmentStore interface {
	AssignRole(ctx context.Context, ra *domain.RoleAssignment) error
	AssignUser(ctx context.Context, ua *domain.UserHierarchyAssignment) error
}

// OverrideStore persists permission overrides.
type OverrideStore interface {
	Grant(ctx context.Context, ov *domain.PermissionOverride) error
	Revoke(ctx context.Context, userID, nodeID, permission string) error
}

// AdminService is the mutation surface of the kernel: hierarchy management,
// role assignment and permission overrides. Every mutation lands on the
// audit stream with the acting principal attached.
type AdminService struct {
	hierarchy   HierarchyStore
	assignments AssignmentStore
	overrides   OverrideStore
	audit       Recorder
	logger      *logger.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(hierarchy HierarchyStore, assignments AssignmentStore, overrides OverrideStore, audit Recorder, log *logger.Logger) *AdminService {
	return &AdminService{
		hierarchy:   hierarchy,
		assignments: assignments,
		overrides:   overrides,
		audit:       audit,
		logger:      log.WithComponent("admin-service"),
	}
}

// CreateNode creates a hierarchy node under an optional parent.
func (s *AdminService) CreateNode(ctx context.Context, node *domain.HierarchyNode) error {
	if node.Name == "" {
		return errors.Validation(map[string]string{"name": "name is required"})
	}
	if err := s.hierarchy.Create(ctx, node); err != nil {
		return err
	}

	parentID := ""
	if node.ParentID != nil {
		parentID = *node.ParentID
	}
	s.logger.Info().
		Str("node_id", node.ID).
		Str("level", string(node.Level)).
		Int("depth", node.Depth).
		Str("created_by", actorID(ctx)).
		Msg("hierarchy node created")
	s.audit.Record(messaging.EventNodeCreated, messaging.NodeCreatedEvent{
		NodeID:   node.ID,
		ParentID: parentID,
		Level:    string(node.Level),
		Path:     node.Path,
		Depth:    node.Depth,
		TenantID: node.TenantID,
	})
	return nil
}

// GetNode returns a hierarchy node.
func (s *AdminService) GetNode(ctx context.Context, id string) (*domain.HierarchyNode, error) {
	return s.hierarchy.GetByID(ctx, id)
}

// DeactivateNode marks a node inactive.
func (s *AdminService) DeactivateNode(ctx context.Context, id string) error {
	return s.hierarchy.Deactivate(ctx, id)
}

// AssignRole attaches a role with a permission set at a node. Every key in
// the set must come from the closed permission enumeration.
func (s *AdminService) AssignRole(ctx context.Context, ra *domain.RoleAssignment) error {
	if !ra.Role.Valid() {
		return errors.Validation(map[string]string{"role": "unknown role"})
	}
	if unknown, ok := permissions.Validate(ra.Permissions); !ok {
		return errors.Validation(map[string]string{"permissions": "unknown permission key: " + unknown})
	}

	if err := s.assignments.AssignRole(ctx, ra); err != nil {
		return err
	}

	s.audit.Record(messaging.EventRoleAssigned, messaging.RoleAssignedEvent{
		HierarchyNodeID:    ra.HierarchyNodeID,
		Role:               string(ra.Role),
		Permissions:        ra.Permissions,
		InheritsFromParent: ra.InheritsFromParent,
		TenantID:           ra.TenantID,
		AssignedBy:         actorID(ctx),
	})
	return nil
}

// AssignUser places a user at a hierarchy node.
func (s *AdminService) AssignUser(ctx context.Context, ua *domain.UserHierarchyAssignment) error {
	if ua.UserID == "" || ua.HierarchyNodeID == "" {
		return errors.Validation(map[string]string{"assignment": "user_id and hierarchy_node_id are required"})
	}
	if !ua.Role.Valid() {
		return errors.Validation(map[string]string{"role": "unknown role"})
	}
	return s.assignments.AssignUser(ctx, ua)
}

// GrantOverride writes a per-user permission override at a node. The
// permission key must be known; an unknown key is rejected rather than
// stored, so a typo can never silently deny or grant nothing.
func (s *AdminService) GrantOverride(ctx context.Context, ov *domain.PermissionOverride) error {
	if !permissions.IsKnown(ov.Permission) {
		return errors.InvalidOverride(map[string]string{
			"permission": "unknown permission key: " + ov.Permission,
		})
	}
	if ov.GrantedBy == "" {
		ov.GrantedBy = actorID(ctx)
	}

	if err := s.overrides.Grant(ctx, ov); err != nil {
		return err
	}

	s.audit.Record(messaging.EventOverrideGranted, messaging.OverrideChangedEvent{
		UserID:          ov.UserID,
		HierarchyNodeID: ov.HierarchyNodeID,
		Permission:      ov.Permission,
		Granted:         ov.Granted,
		Reason:          ov.Reason,
		GrantedBy:       ov.GrantedBy,
		TenantID:        ov.TenantID,
	})
	return nil
}

// RevokeOverride deactivates the active override for (user, node, permission).
func (s *AdminService) RevokeOverride(ctx context.Context, userID, nodeID, permission string) error {
	if err := s.overrides.Revoke(ctx, userID, nodeID, permission); err != nil {
		return err
	}

	tenantID, _ := tenant.TenantID(ctx)
	s.audit.Record(messaging.EventOverrideRevoked, messaging.OverrideChangedEvent{
		UserID:          userID,
		HierarchyNodeID: nodeID,
		Permission:      permission,
		GrantedBy:       actorID(ctx),
		TenantID:        tenantID,
	})
	return nil
}
