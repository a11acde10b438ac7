package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// OverrideRepository persists per-user permission overrides.
// All queries are tenant-isolated through RLS.
type OverrideRepository struct {
	db *database.DB
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *database.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// Grant writes an override for (user, node, permission). Any existing active
// override for the triple is deactivated in the same transaction, so a reader
// either sees the old override or the new one, never both and never neither.
func (r *OverrideRepository) Grant(ctx context.Context, ov *domain.PermissionOverride) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if ov.UserID == "" || ov.HierarchyNodeID == "" || ov.Permission == "" {
		return errors.InvalidOverride(map[string]string{
			"override": "user_id, hierarchy_node_id and permission are required",
		})
	}

	if ov.ID == "" {
		ov.ID = uuid.New().String()
	}
	ov.TenantID = tenantID
	ov.CreatedAt = time.Now().UTC()
	ov.IsActive = true

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		q := r.db.Queryer(ctx)

		deactivate := `
			UPDATE permission_overrides SET is_active = false
			WHERE user_id = $1 AND hierarchy_node_id = $2 AND permission = $3 AND is_active = true
		`
		if _, err := q.ExecContext(ctx, deactivate, ov.UserID, ov.HierarchyNodeID, ov.Permission); err != nil {
			return err
		}

		insert := `
			INSERT INTO permission_overrides (id, tenant_id, user_id, hierarchy_node_id, permission, granted, reason, granted_by, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := q.ExecContext(ctx, insert,
			ov.ID, ov.TenantID, ov.UserID, ov.HierarchyNodeID, ov.Permission,
			ov.Granted, ov.Reason, ov.GrantedBy, ov.IsActive, ov.CreatedAt,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// Revoke deactivates the active override for (user, node, permission).
func (r *OverrideRepository) Revoke(ctx context.Context, userID, nodeID, permission string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE permission_overrides SET is_active = false
			WHERE user_id = $1 AND hierarchy_node_id = $2 AND permission = $3 AND is_active = true
		`
		q := r.db.Queryer(ctx)
		res, err := q.ExecContext(ctx, query, userID, nodeID, permission)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.NotFound("permission override")
		}
		return nil
	})
}

// ActiveForPermission returns the active overrides for one user and one
// permission across the given nodes, keyed by node ID. One round trip for
// the whole resolution chain.
func (r *OverrideRepository) ActiveForPermission(ctx context.Context, userID, permission string, nodeIDs []string) (map[string]*domain.PermissionOverride, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string]*domain.PermissionOverride)
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT id, tenant_id, user_id, hierarchy_node_id, permission, granted, reason, granted_by, is_active, created_at
			FROM permission_overrides
			WHERE user_id = $1 AND permission = $2 AND hierarchy_node_id = ANY($3) AND is_active = true
		`
		q := r.db.Queryer(ctx)
		rows, err := q.QueryxContext(ctx, query, userID, permission, pq.Array(nodeIDs))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ov domain.PermissionOverride
			if err := rows.StructScan(&ov); err != nil {
				return err
			}
			byNode[ov.HierarchyNodeID] = &ov
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return byNode, nil
}

// ActiveAtNodes returns every active override for one user across the given
// nodes, keyed by node ID. Used for effective-permission listings.
func (r *OverrideRepository) ActiveAtNodes(ctx context.Context, userID string, nodeIDs []string) (map[string][]*domain.PermissionOverride, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string][]*domain.PermissionOverride)
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT id, tenant_id, user_id, hierarchy_node_id, permission, granted, reason, granted_by, is_active, created_at
			FROM permission_overrides
			WHERE user_id = $1 AND hierarchy_node_id = ANY($2) AND is_active = true
		`
		q := r.db.Queryer(ctx)
		rows, err := q.QueryxContext(ctx, query, userID, pq.Array(nodeIDs))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ov domain.PermissionOverride
			if err := rows.StructScan(&ov); err != nil {
				return err
			}
			byNode[ov.HierarchyNodeID] = append(byNode[ov.HierarchyNodeID], &ov)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return byNode, nil
}
