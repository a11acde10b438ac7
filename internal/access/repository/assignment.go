package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// AssignmentRepository persists role assignments at hierarchy nodes and
// user placements within the hierarchy. All queries are tenant-isolated
// through RLS.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// AssignRole creates an active role assignment at a node.
// The unique index on (hierarchy_node_id, role) WHERE is_active guarantees
// at most one active assignment per pair; violations map to Conflict.
func (r *AssignmentRepository) AssignRole(ctx context.Context, ra *domain.RoleAssignment) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if ra.ID == "" {
		ra.ID = uuid.New().String()
	}
	ra.TenantID = tenantID
	now := time.Now().UTC()
	ra.CreatedAt = now
	ra.UpdatedAt = now
	ra.IsActive = true

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO role_assignments (id, tenant_id, hierarchy_node_id, role, permissions, inherits_from_parent, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		q := r.db.Queryer(ctx)
		if _, err := q.ExecContext(ctx, query,
			ra.ID, ra.TenantID, ra.HierarchyNodeID, ra.Role, ra.Permissions,
			ra.InheritsFromParent, ra.IsActive, ra.CreatedAt, ra.UpdatedAt,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// ActiveByNodes returns all active role assignments at the given nodes,
// keyed by node ID. One round trip for the whole resolution chain.
func (r *AssignmentRepository) ActiveByNodes(ctx context.Context, nodeIDs []string) (map[string][]*domain.RoleAssignment, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string][]*domain.RoleAssignment)
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT id, tenant_id, hierarchy_node_id, role, permissions, inherits_from_parent, is_active, created_at, updated_at
			FROM role_assignments
			WHERE hierarchy_node_id = ANY($1) AND is_active = true
		`
		q := r.db.Queryer(ctx)
		rows, err := q.QueryxContext(ctx, query, pq.Array(nodeIDs))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ra domain.RoleAssignment
			if err := rows.StructScan(&ra); err != nil {
				return err
			}
			byNode[ra.HierarchyNodeID] = append(byNode[ra.HierarchyNodeID], &ra)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return byNode, nil
}

// AssignUser places a user at a hierarchy node. When the new assignment is
// primary, any previous primary assignment for the user is demoted in the
// same transaction so readers never observe two primaries.
func (r *AssignmentRepository) AssignUser(ctx context.Context, ua *domain.UserHierarchyAssignment) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if ua.ID == "" {
		ua.ID = uuid.New().String()
	}
	ua.TenantID = tenantID
	ua.CreatedAt = time.Now().UTC()
	ua.IsActive = true

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		q := r.db.Queryer(ctx)

		if ua.IsPrimary {
			demote := `UPDATE user_hierarchy_assignments SET is_primary = false WHERE user_id = $1 AND is_primary = true`
			if _, err := q.ExecContext(ctx, demote, ua.UserID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO user_hierarchy_assignments (id, tenant_id, user_id, hierarchy_node_id, role, is_primary, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := q.ExecContext(ctx, query,
			ua.ID, ua.TenantID, ua.UserID, ua.HierarchyNodeID, ua.Role,
			ua.IsPrimary, ua.IsActive, ua.CreatedAt,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// ActiveRolesForUser returns the distinct roles the user holds through
// active hierarchy assignments.
func (r *AssignmentRepository) ActiveRolesForUser(ctx context.Context, userID string) ([]tenant.Role, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var roles []tenant.Role
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT DISTINCT role
			FROM user_hierarchy_assignments
			WHERE user_id = $1 AND is_active = true
		`
		q := r.db.Queryer(ctx)
		rows, err := q.QueryxContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var role tenant.Role
			if err := rows.Scan(&role); err != nil {
				return err
			}
			roles = append(roles, role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}
