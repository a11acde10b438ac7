// Package resolver answers permission checks against the organisational
// hierarchy: walk from the checked node up to the root, closest match wins,
// per-user overrides outrank role grants at every level.
package resolver

import (
	"context"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/permissions"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// HierarchyStore loads nodes and ancestor chains.
type HierarchyStore interface {
	AncestorChain(ctx context.Context, nodeID string) ([]*domain.HierarchyNode, error)
}

// AssignmentStore loads role assignments and user placements.
type AssignmentStore interface {
	ActiveByNodes(ctx context.Context, nodeIDs []string) (map[string][]*domain.RoleAssignment, error)
	ActiveRolesForUser(ctx context.Context, userID string) ([]tenant.Role, error)
}

// OverrideStore loads per-user permission overrides.
type OverrideStore interface {
	ActiveForPermission(ctx context.Context, userID, permission string, nodeIDs []string) (map[string]*domain.PermissionOverride, error)
	ActiveAtNodes(ctx context.Context, userID string, nodeIDs []string) (map[string][]*domain.PermissionOverride, error)
}

// Resolver resolves effective permissions over the hierarchy.
type Resolver struct {
	hierarchy   HierarchyStore
	assignments AssignmentStore
	overrides   OverrideStore
	logger      *logger.Logger
}

// New creates a resolver.
func New(hierarchy HierarchyStore, assignments AssignmentStore, overrides OverrideStore, log *logger.Logger) *Resolver {
	return &Resolver{
		hierarchy:   hierarchy,
		assignments: assignments,
		overrides:   overrides,
		logger:      log.WithComponent("resolver"),
	}
}

// Resolve decides whether userID holds permission at nodeID.
//
// The walk starts at the checked node and proceeds toward the root. At each
// node an active override for (user, permission) decides immediately. A role
// grant for a role the user holds produces a tentative allow; the walk stops
// there only when the assignment does not inherit from its parent, otherwise
// an ancestor override may still narrow it. No verdict after the root means
// denied. Any store failure denies: the resolver fails closed.
func (r *Resolver) Resolve(ctx context.Context, userID, nodeID, permission string) (domain.Decision, error) {
	chain, err := r.hierarchy.AncestorChain(ctx, nodeID)
	if err != nil {
		return domain.DecisionDenied, r.failClosed(err)
	}

	nodeIDs := make([]string, len(chain))
	for i, node := range chain {
		nodeIDs[i] = node.ID
	}

	overrides, err := r.overrides.ActiveForPermission(ctx, userID, permission, nodeIDs)
	if err != nil {
		return domain.DecisionDenied, r.failClosed(err)
	}
	assignments, err := r.assignments.ActiveByNodes(ctx, nodeIDs)
	if err != nil {
		return domain.DecisionDenied, r.failClosed(err)
	}
	held, err := r.heldRoles(ctx, userID)
	if err != nil {
		return domain.DecisionDenied, r.failClosed(err)
	}

	decision := walk(chain, held, assignments, func(nodeID string) *domain.PermissionOverride {
		return overrides[nodeID]
	}, permission)

	r.logger.Debug().
		Str("user_id", userID).
		Str("node_id", nodeID).
		Str("permission", permission).
		Str("decision", string(decision)).
		Msg("permission resolved")
	return decision, nil
}

// EffectivePermissions lists every known concrete permission the user holds
// at the node, computed with the same walk as Resolve so the listing can
// never disagree with individual checks.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, nodeID string) ([]string, error) {
	chain, err := r.hierarchy.AncestorChain(ctx, nodeID)
	if err != nil {
		return nil, r.failClosed(err)
	}

	nodeIDs := make([]string, len(chain))
	for i, node := range chain {
		nodeIDs[i] = node.ID
	}

	overridesByNode, err := r.overrides.ActiveAtNodes(ctx, userID, nodeIDs)
	if err != nil {
		return nil, r.failClosed(err)
	}
	assignments, err := r.assignments.ActiveByNodes(ctx, nodeIDs)
	if err != nil {
		return nil, r.failClosed(err)
	}
	held, err := r.heldRoles(ctx, userID)
	if err != nil {
		return nil, r.failClosed(err)
	}

	// Index overrides by (node, permission) once, then run the walk per key.
	indexed := make(map[string]map[string]*domain.PermissionOverride, len(overridesByNode))
	for nodeID, ovs := range overridesByNode {
		byPerm := make(map[string]*domain.PermissionOverride, len(ovs))
		for _, ov := range ovs {
			byPerm[ov.Permission] = ov
		}
		indexed[nodeID] = byPerm
	}

	var granted []string
	for _, key := range permissions.Known {
		if key == permissions.Wildcard {
			continue
		}
		decision := walk(chain, held, assignments, func(nodeID string) *domain.PermissionOverride {
			return indexed[nodeID][key]
		}, key)
		if decision.Allowed() {
			granted = append(granted, key)
		}
	}
	return granted, nil
}

func (r *Resolver) heldRoles(ctx context.Context, userID string) (map[tenant.Role]bool, error) {
	roles, err := r.assignments.ActiveRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[tenant.Role]bool, len(roles))
	for _, role := range roles {
		held[role] = true
	}
	return held, nil
}

// failClosed converts store outages into the unavailable sentinel and keeps
// everything else intact. Callers always receive a denied decision alongside.
func (r *Resolver) failClosed(err error) error {
	if database.IsUnavailable(err) {
		r.logger.Error().Err(err).Msg("permission store unavailable, denying")
		return errors.StoreUnavailable(err)
	}
	return err
}

// walk runs the resolution over a closest-first ancestor chain.
func walk(
	chain []*domain.HierarchyNode,
	held map[tenant.Role]bool,
	assignments map[string][]*domain.RoleAssignment,
	overrideAt func(nodeID string) *domain.PermissionOverride,
	permission string,
) domain.Decision {
	tentative := domain.DecisionDenied
	for _, node := range chain {
		if ov := overrideAt(node.ID); ov != nil {
			return domain.DecisionFor(ov.Granted)
		}

		stop := false
		for _, ra := range assignments[node.ID] {
			if !held[ra.Role] {
				continue
			}
			if !permissions.Has(ra.Permissions, permission) {
				continue
			}
			tentative = domain.DecisionAllowed
			if !ra.InheritsFromParent {
				stop = true
			}
		}
		if stop {
			return tentative
		}
	}
	return tentative
}
