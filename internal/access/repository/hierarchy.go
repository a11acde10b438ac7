package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// levelRank orders hierarchy levels from root to leaf.
var levelRank = map[domain.HierarchyLevel]int{
	domain.LevelOrganization: 0,
	domain.LevelLocation:     1,
	domain.LevelDepartment:   2,
	domain.LevelUserGroup:    3,
}

// HierarchyRepository persists the organizational forest.
// All queries are tenant-isolated through RLS.
type HierarchyRepository struct {
	db *database.DB
}

// NewHierarchyRepository creates a new hierarchy repository
func NewHierarchyRepository(db *database.DB) *HierarchyRepository {
	return &HierarchyRepository{db: db}
}

const nodeColumns = `id, tenant_id, parent_id, name, level, hierarchy_path, depth, is_active, created_at, updated_at`

// Create inserts a hierarchy node, computing its materialized path and depth
// from the parent. The depth and path invariants are enforced here, at write
// time, so a cyclic tree cannot be persisted in the first place.
func (r *HierarchyRepository) Create(ctx context.Context, node *domain.HierarchyNode) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if !node.Level.Valid() {
		return errors.Validation(map[string]string{"level": "unknown hierarchy level"})
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	node.TenantID = tenantID
	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now
	node.IsActive = true

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if node.ParentID == nil {
			if node.Level != domain.LevelOrganization {
				return errors.Validation(map[string]string{"level": "root node must be an organization"})
			}
			node.Depth = 0
			node.Path = node.ID
		} else {
			parent, err := r.getByID(ctx, *node.ParentID)
			if err != nil {
				return err
			}
			if !parent.IsActive {
				return errors.BadRequest("parent node is inactive")
			}
			if levelRank[node.Level] <= levelRank[parent.Level] {
				return errors.Validation(map[string]string{"level": "child level must be below parent level"})
			}
			node.Depth = parent.Depth + 1
			node.Path = parent.ChildPath(node.ID)
		}

		query := `
			INSERT INTO hierarchy_nodes (id, tenant_id, parent_id, name, level, hierarchy_path, depth, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		q := r.db.Queryer(ctx)
		if _, err := q.ExecContext(ctx, query,
			node.ID, node.TenantID, node.ParentID, node.Name, node.Level,
			node.Path, node.Depth, node.IsActive, node.CreatedAt, node.UpdatedAt,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a hierarchy node by ID
func (r *HierarchyRepository) GetByID(ctx context.Context, id string) (*domain.HierarchyNode, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var node *domain.HierarchyNode
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		node, err = r.getByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (r *HierarchyRepository) getByID(ctx context.Context, id string) (*domain.HierarchyNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM hierarchy_nodes WHERE id = $1`

	var node domain.HierarchyNode
	q := r.db.Queryer(ctx)
	if err := q.QueryRowxContext(ctx, query, id).StructScan(&node); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("hierarchy node")
		}
		return nil, err
	}
	return &node, nil
}

// AncestorChain returns the node and all its ancestors ordered closest-first
// (the node itself at index 0, the root last).
//
// The ancestor set is read from the node's materialized path in a single
// round trip rather than N parent lookups. The chain's depth and path
// invariants are re-validated as a defensive backstop: creation-time checks
// make cycles structurally impossible, but a corrupted chain must surface as
// ErrHierarchyCorruption, never as an infinite walk.
func (r *HierarchyRepository) AncestorChain(ctx context.Context, nodeID string) ([]*domain.HierarchyNode, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var chain []*domain.HierarchyNode
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		node, err := r.getByID(ctx, nodeID)
		if err != nil {
			return err
		}

		ids := node.AncestorIDs()
		if len(ids) == 0 || ids[len(ids)-1] != node.ID {
			return errors.HierarchyCorruption(nodeID, "node path does not end with its own id")
		}

		query := `
			SELECT ` + nodeColumns + `
			FROM hierarchy_nodes
			WHERE id = ANY($1) AND is_active = true
			ORDER BY depth DESC
		`
		q := r.db.Queryer(ctx)
		rows, err := q.QueryxContext(ctx, query, pq.Array(ids))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var n domain.HierarchyNode
			if err := rows.StructScan(&n); err != nil {
				return err
			}
			chain = append(chain, &n)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(chain) != len(ids) {
			return errors.HierarchyCorruption(nodeID, "ancestor chain is incomplete")
		}
		if reason, ok := domain.ValidateChain(chain); !ok {
			return errors.HierarchyCorruption(nodeID, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// Deactivate marks a node inactive. Descendants are left untouched: an
// inactive ancestor drops out of every resolution chain, which is surfaced
// as corruption until the subtree is re-parented or deactivated too.
func (r *HierarchyRepository) Deactivate(ctx context.Context, id string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `UPDATE hierarchy_nodes SET is_active = false, updated_at = $2 WHERE id = $1`
		q := r.db.Queryer(ctx)
		res, err := q.ExecContext(ctx, query, id, time.Now().UTC())
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.NotFound("hierarchy node")
		}
		return nil
	})
}
