package resolver_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/resolver"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// fakeStore serves a fixed hierarchy out of memory so resolution semantics
// can be tested without a database.
type fakeStore struct {
	nodes       map[string]*domain.HierarchyNode // by ID
	assignments map[string][]*domain.RoleAssignment
	overrides   []*domain.PermissionOverride
	roles       map[string][]tenant.Role

	chainErr       error
	assignmentsErr error
	overridesErr   error
}

func (f *fakeStore) AncestorChain(ctx context.Context, nodeID string) ([]*domain.HierarchyNode, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	node, ok := f.nodes[nodeID]
	if !ok {
		return nil, errors.NotFound("hierarchy node")
	}
	ids := node.AncestorIDs()
	chain := make([]*domain.HierarchyNode, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		chain = append(chain, f.nodes[ids[i]])
	}
	return chain, nil
}

func (f *fakeStore) ActiveByNodes(ctx context.Context, nodeIDs []string) (map[string][]*domain.RoleAssignment, error) {
	if f.assignmentsErr != nil {
		return nil, f.assignmentsErr
	}
	out := make(map[string][]*domain.RoleAssignment)
	for _, id := range nodeIDs {
		if ras := f.assignments[id]; len(ras) > 0 {
			out[id] = ras
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveRolesForUser(ctx context.Context, userID string) ([]tenant.Role, error) {
	if f.assignmentsErr != nil {
		return nil, f.assignmentsErr
	}
	return f.roles[userID], nil
}

func (f *fakeStore) ActiveForPermission(ctx context.Context, userID, permission string, nodeIDs []string) (map[string]*domain.PermissionOverride, error) {
	if f.overridesErr != nil {
		return nil, f.overridesErr
	}
	out := make(map[string]*domain.PermissionOverride)
	for _, ov := range f.overrides {
		if ov.UserID == userID && ov.Permission == permission {
			out[ov.HierarchyNodeID] = ov
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveAtNodes(ctx context.Context, userID string, nodeIDs []string) (map[string][]*domain.PermissionOverride, error) {
	if f.overridesErr != nil {
		return nil, f.overridesErr
	}
	out := make(map[string][]*domain.PermissionOverride)
	for _, ov := range f.overrides {
		if ov.UserID == userID {
			out[ov.HierarchyNodeID] = append(out[ov.HierarchyNodeID], ov)
		}
	}
	return out, nil
}

const testUser = "user-1"

// newOrgFixture builds the canonical three-level tree:
// org-root -> location-42 -> department-7.
func newOrgFixture() *fakeStore {
	org := &domain.HierarchyNode{ID: "org-root", Name: "Org Root", Level: domain.LevelOrganization, Path: "org-root", Depth: 0, IsActive: true}
	loc := &domain.HierarchyNode{ID: "location-42", ParentID: &org.ID, Name: "Location 42", Level: domain.LevelLocation, Path: "org-root/location-42", Depth: 1, IsActive: true}
	dep := &domain.HierarchyNode{ID: "department-7", ParentID: &loc.ID, Name: "Department 7", Level: domain.LevelDepartment, Path: "org-root/location-42/department-7", Depth: 2, IsActive: true}

	return &fakeStore{
		nodes: map[string]*domain.HierarchyNode{
			org.ID: org, loc.ID: loc, dep.ID: dep,
		},
		assignments: map[string][]*domain.RoleAssignment{},
		roles:       map[string][]tenant.Role{testUser: {tenant.RoleUser}},
	}
}

func newResolver(store *fakeStore) *resolver.Resolver {
	return resolver.New(store, store, store, logger.Nop())
}

func TestResolveRoleGrantAtAncestor(t *testing.T) {
	store := newOrgFixture()
	store.assignments["org-root"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "org-root", Role: tenant.RoleUser,
		Permissions: []string{"pricing.edit"}, InheritsFromParent: true, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
}

func TestResolveDefaultDenied(t *testing.T) {
	r := newResolver(newOrgFixture())
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, decision)
}

func TestResolveRoleNotHeld(t *testing.T) {
	store := newOrgFixture()
	// The grant exists, but for a role the user does not hold.
	store.assignments["org-root"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "org-root", Role: tenant.RoleOrgAdmin,
		Permissions: []string{"pricing.edit"}, InheritsFromParent: true, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, decision)
}

func TestResolveOverrideBeatsRoleGrant(t *testing.T) {
	// Role grants pricing.edit at org-root, but a deny override sits at
	// location-42, closer to the checked node. The override wins.
	store := newOrgFixture()
	store.assignments["org-root"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "org-root", Role: tenant.RoleUser,
		Permissions: []string{"pricing.edit"}, InheritsFromParent: true, IsActive: true,
	}}
	store.overrides = []*domain.PermissionOverride{{
		UserID: testUser, HierarchyNodeID: "location-42",
		Permission: "pricing.edit", Granted: false, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, decision)
}

func TestResolveAllowOverrideWithoutAnyGrant(t *testing.T) {
	store := newOrgFixture()
	store.overrides = []*domain.PermissionOverride{{
		UserID: testUser, HierarchyNodeID: "department-7",
		Permission: "pricing.edit", Granted: true, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
}

func TestResolveClosestOverrideWins(t *testing.T) {
	// Deny at the department, allow at the organization. The closest
	// override decides; the walk never reaches the allow.
	store := newOrgFixture()
	store.overrides = []*domain.PermissionOverride{
		{UserID: testUser, HierarchyNodeID: "department-7", Permission: "pricing.edit", Granted: false, IsActive: true},
		{UserID: testUser, HierarchyNodeID: "org-root", Permission: "pricing.edit", Granted: true, IsActive: true},
	}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, decision)

	// Resolving at the organization itself starts a fresh walk: the allow at
	// org-root decides there, untouched by the deny further down.
	decision, err = r.Resolve(context.Background(), testUser, "org-root", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
}

func TestResolveNonInheritingGrantStopsWalk(t *testing.T) {
	// Grant at location-42 with inherits_from_parent=false: the walk stops
	// there, so a deny override above it at org-root is never consulted.
	store := newOrgFixture()
	store.assignments["location-42"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "location-42", Role: tenant.RoleUser,
		Permissions: []string{"pricing.edit"}, InheritsFromParent: false, IsActive: true,
	}}
	store.overrides = []*domain.PermissionOverride{{
		UserID: testUser, HierarchyNodeID: "org-root",
		Permission: "pricing.edit", Granted: false, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
}

func TestResolveInheritingGrantNarrowedByAncestorOverride(t *testing.T) {
	// Same as above, but the grant inherits from its parent: the walk
	// continues upward and the ancestor deny override narrows it.
	store := newOrgFixture()
	store.assignments["location-42"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "location-42", Role: tenant.RoleUser,
		Permissions: []string{"pricing.edit"}, InheritsFromParent: true, IsActive: true,
	}}
	store.overrides = []*domain.PermissionOverride{{
		UserID: testUser, HierarchyNodeID: "org-root",
		Permission: "pricing.edit", Granted: false, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, decision)
}

func TestResolveWildcardGrant(t *testing.T) {
	store := newOrgFixture()
	store.assignments["org-root"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "org-root", Role: tenant.RoleUser,
		Permissions: []string{"pricing.*"}, InheritsFromParent: true, IsActive: true,
	}}

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.publish")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
}

func TestResolveFailsClosedOnStoreOutage(t *testing.T) {
	cases := map[string]func(*fakeStore){
		"hierarchy unavailable":   func(f *fakeStore) { f.chainErr = io.EOF },
		"overrides unavailable":   func(f *fakeStore) { f.overridesErr = io.EOF },
		"assignments unavailable": func(f *fakeStore) { f.assignmentsErr = io.EOF },
	}

	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			store := newOrgFixture()
			store.assignments["org-root"] = []*domain.RoleAssignment{{
				HierarchyNodeID: "org-root", Role: tenant.RoleUser,
				Permissions: []string{"pricing.edit"}, InheritsFromParent: true, IsActive: true,
			}}
			inject(store)

			r := newResolver(store)
			decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

			assert.Equal(t, domain.DecisionDenied, decision)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
		})
	}
}

func TestResolveCorruptChainDenies(t *testing.T) {
	store := newOrgFixture()
	store.chainErr = errors.HierarchyCorruption("department-7", "ancestor chain is incomplete")

	r := newResolver(store)
	decision, err := r.Resolve(context.Background(), testUser, "department-7", "pricing.edit")

	assert.Equal(t, domain.DecisionDenied, decision)
	assert.ErrorIs(t, err, errors.ErrHierarchyCorruption)
}

func TestEffectivePermissions(t *testing.T) {
	store := newOrgFixture()
	store.assignments["org-root"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "org-root", Role: tenant.RoleUser,
		Permissions: []string{"pricing.*", "audit.read"}, InheritsFromParent: true, IsActive: true,
	}}
	store.overrides = []*domain.PermissionOverride{
		// Deny one of the wildcard-covered keys close to the node.
		{UserID: testUser, HierarchyNodeID: "department-7", Permission: "pricing.publish", Granted: false, IsActive: true},
		// Grant an unrelated key the roles never cover.
		{UserID: testUser, HierarchyNodeID: "location-42", Permission: "competitors.read", Granted: true, IsActive: true},
	}

	r := newResolver(store)
	perms, err := r.EffectivePermissions(context.Background(), testUser, "department-7")

	require.NoError(t, err)
	assert.Contains(t, perms, "pricing.read")
	assert.Contains(t, perms, "pricing.edit")
	assert.Contains(t, perms, "audit.read")
	assert.Contains(t, perms, "competitors.read")
	assert.NotContains(t, perms, "pricing.publish", "deny override must remove the key")
	assert.NotContains(t, perms, "flags.manage")
}

func TestEffectivePermissionsAgreesWithResolve(t *testing.T) {
	store := newOrgFixture()
	store.assignments["location-42"] = []*domain.RoleAssignment{{
		HierarchyNodeID: "location-42", Role: tenant.RoleUser,
		Permissions: []string{"market.*"}, InheritsFromParent: true, IsActive: true,
	}}
	store.overrides = []*domain.PermissionOverride{
		{UserID: testUser, HierarchyNodeID: "department-7", Permission: "market.data.export", Granted: false, IsActive: true},
	}

	r := newResolver(store)
	perms, err := r.EffectivePermissions(context.Background(), testUser, "department-7")
	require.NoError(t, err)

	listed := make(map[string]bool, len(perms))
	for _, p := range perms {
		listed[p] = true
	}

	for _, key := range []string{"market.data.read", "market.data.export", "pricing.edit", "audit.read"} {
		decision, err := r.Resolve(context.Background(), testUser, "department-7", key)
		require.NoError(t, err)
		assert.Equal(t, decision.Allowed(), listed[key], key)
	}
}
