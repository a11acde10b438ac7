package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/testutil"
)

type fakeGuard struct {
	err error
}

func (f *fakeGuard) Authorize(ctx context.Context, operation, resourceTenantID string) error {
	return f.err
}

type fakeResolver struct {
	decision domain.Decision
	perms    []string
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID, nodeID, permission string) (domain.Decision, error) {
	if f.err != nil {
		return domain.DecisionDenied, f.err
	}
	return f.decision, nil
}

func (f *fakeResolver) EffectivePermissions(ctx context.Context, userID, nodeID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms, nil
}

func TestAuthorizeDelegatesToGuard(t *testing.T) {
	audit := testutil.NewMockRecorder()
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{}, audit, logger.Nop())

	require.NoError(t, svc.Authorize(testutil.TenantContext(), "orders.read", testutil.TestTenantID))

	svc = service.NewAccessService(&fakeGuard{err: errors.TenantMismatch("orders.read")}, &fakeResolver{}, audit, logger.Nop())
	err := svc.Authorize(testutil.TenantContext(), "orders.read", testutil.OtherTenantID)
	assert.ErrorIs(t, err, errors.ErrTenantMismatch)
}

func TestResolvePassesDecisionThrough(t *testing.T) {
	audit := testutil.NewMockRecorder()
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{decision: domain.DecisionAllowed}, audit, logger.Nop())

	decision, err := svc.Resolve(testutil.TenantContext(), testutil.TestUserID, "node-1", "pricing.edit")

	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllowed, decision)
	audit.AssertNothingRecorded(t)
}

func TestResolveReportsCorruption(t *testing.T) {
	audit := testutil.NewMockRecorder()
	corrupt := errors.HierarchyCorruption("node-1", "chain does not terminate at a root")
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{err: corrupt}, audit, logger.Nop())

	decision, err := svc.Resolve(testutil.TenantContext(), testutil.TestUserID, "node-1", "pricing.edit")

	assert.ErrorIs(t, err, errors.ErrHierarchyCorruption)
	assert.Equal(t, domain.DecisionDenied, decision)

	audit.AssertRecorded(t, messaging.EventHierarchyCorrupt)
	payload := audit.Last().Payload.(messaging.HierarchyCorruptionEvent)
	assert.Equal(t, "node-1", payload.NodeID)
	assert.Equal(t, testutil.TestTenantID, payload.TenantID)
}

func TestResolveDoesNotReportOutagesAsCorruption(t *testing.T) {
	audit := testutil.NewMockRecorder()
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{err: errors.StoreUnavailable(context.DeadlineExceeded)}, audit, logger.Nop())

	decision, err := svc.Resolve(testutil.TenantContext(), testutil.TestUserID, "node-1", "pricing.edit")

	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.Equal(t, domain.DecisionDenied, decision)
	audit.AssertNothingRecorded(t)
}

func TestEffectivePermissionsReportsCorruption(t *testing.T) {
	audit := testutil.NewMockRecorder()
	corrupt := errors.HierarchyCorruption("node-1", "depth does not decrease along the chain")
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{err: corrupt}, audit, logger.Nop())

	perms, err := svc.EffectivePermissions(testutil.TenantContext(), testutil.TestUserID, "node-1")

	assert.ErrorIs(t, err, errors.ErrHierarchyCorruption)
	assert.Nil(t, perms)
	audit.AssertRecorded(t, messaging.EventHierarchyCorrupt)
}

func TestEffectivePermissionsPassThrough(t *testing.T) {
	audit := testutil.NewMockRecorder()
	svc := service.NewAccessService(&fakeGuard{}, &fakeResolver{perms: []string{"pricing.edit", "pricing.view"}}, audit, logger.Nop())

	perms, err := svc.EffectivePermissions(testutil.TenantContext(), testutil.TestUserID, "node-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"pricing.edit", "pricing.view"}, perms)
}
