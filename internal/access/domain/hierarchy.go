package domain

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// HierarchyLevel is one level of an organization's internal tree.
type HierarchyLevel string

const (
	LevelOrganization HierarchyLevel = "organization"
	LevelLocation     HierarchyLevel = "location"
	LevelDepartment   HierarchyLevel = "department"
	LevelUserGroup    HierarchyLevel = "user_group"
)

// Valid reports whether l is a known hierarchy level.
func (l HierarchyLevel) Valid() bool {
	switch l {
	case LevelOrganization, LevelLocation, LevelDepartment, LevelUserGroup:
		return true
	}
	return false
}

// PathSeparator joins node IDs in a materialized hierarchy path.
const PathSeparator = "/"

// HierarchyNode is one node of the organizational forest.
//
// Invariants: Depth equals the parent's depth + 1 (0 at a root), and Path is
// the parent's path plus this node's own ID. A root node has a nil ParentID
// and Path equal to its ID. Both are validated at creation time, so cycles
// are structurally impossible; resolution re-checks them as a backstop.
type HierarchyNode struct {
	ID        string         `json:"id" db:"id"`
	TenantID  string         `json:"tenant_id" db:"tenant_id"`
	ParentID  *string        `json:"parent_id,omitempty" db:"parent_id"`
	Name      string         `json:"name" db:"name"`
	Level     HierarchyLevel `json:"level" db:"level"`
	Path      string         `json:"hierarchy_path" db:"hierarchy_path"`
	Depth     int            `json:"depth" db:"depth"`
	IsActive  bool           `json:"is_active" db:"is_active"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// AncestorIDs returns the IDs encoded in the node's materialized path,
// root first, ending with the node's own ID.
func (n *HierarchyNode) AncestorIDs() []string {
	if n.Path == "" {
		return nil
	}
	return strings.Split(n.Path, PathSeparator)
}

// ChildPath returns the materialized path a child with the given ID would carry.
func (n *HierarchyNode) ChildPath(childID string) string {
	return n.Path + PathSeparator + childID
}

// ValidateChain checks the structural invariants of an ancestor chain ordered
// closest-first (node itself at index 0, root last). It returns a reason
// string and false when the chain is malformed.
func ValidateChain(chain []*HierarchyNode) (string, bool) {
	if len(chain) == 0 {
		return "empty chain", false
	}
	seen := make(map[string]struct{}, len(chain))
	for i, n := range chain {
		if _, dup := seen[n.ID]; dup {
			return "duplicate node " + n.ID + " in ancestor chain", false
		}
		seen[n.ID] = struct{}{}

		if i == len(chain)-1 {
			if n.Depth != 0 || n.ParentID != nil {
				return "chain does not terminate at a root", false
			}
			continue
		}
		parent := chain[i+1]
		if n.Depth != parent.Depth+1 {
			return "depth invariant violated at node " + n.ID, false
		}
		if n.Path != parent.ChildPath(n.ID) {
			return "path invariant violated at node " + n.ID, false
		}
	}
	return "", true
}

// RoleAssignment attaches a role and its permission set to a hierarchy node.
// At most one active assignment may exist per (node, role) pair.
type RoleAssignment struct {
	ID                 string         `json:"id" db:"id"`
	TenantID           string         `json:"tenant_id" db:"tenant_id"`
	HierarchyNodeID    string         `json:"hierarchy_node_id" db:"hierarchy_node_id"`
	Role               tenant.Role    `json:"role" db:"role"`
	Permissions        pq.StringArray `json:"permissions" db:"permissions"`
	InheritsFromParent bool           `json:"inherits_from_parent" db:"inherits_from_parent"`
	IsActive           bool           `json:"is_active" db:"is_active"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// PermissionOverride is an explicit per-user grant or deny at a node.
// An override at a node takes precedence over any role-derived permission at
// the same node; at most one active override exists per (user, node, permission).
type PermissionOverride struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	UserID          string    `json:"user_id" db:"user_id"`
	HierarchyNodeID string    `json:"hierarchy_node_id" db:"hierarchy_node_id"`
	Permission      string    `json:"permission" db:"permission"`
	Granted         bool      `json:"granted" db:"granted"`
	Reason          *string   `json:"reason,omitempty" db:"reason"`
	GrantedBy       string    `json:"granted_by" db:"granted_by"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// UserHierarchyAssignment places a user at a hierarchy node with a role.
// A user may be assigned to multiple nodes; exactly one assignment per user
// may be primary.
type UserHierarchyAssignment struct {
	ID              string      `json:"id" db:"id"`
	TenantID        string      `json:"tenant_id" db:"tenant_id"`
	UserID          string      `json:"user_id" db:"user_id"`
	HierarchyNodeID string      `json:"hierarchy_node_id" db:"hierarchy_node_id"`
	Role            tenant.Role `json:"role" db:"role"`
	IsPrimary       bool        `json:"is_primary" db:"is_primary"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// Decision is the outcome of a permission resolution.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d == DecisionAllowed
}

// DecisionFor maps a granted flag to a Decision.
func DecisionFor(granted bool) Decision {
	if granted {
		return DecisionAllowed
	}
	return DecisionDenied
}
