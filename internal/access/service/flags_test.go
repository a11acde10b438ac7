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

type fakeFlagStore struct {
	flags      map[string]*domain.FeatureFlag
	created    []*domain.FeatureFlag
	updated    []*domain.FeatureFlag
	deprecated []string
	overrides  []*domain.FeatureFlagOverride
}

func newFakeFlagStore(existing ...*domain.FeatureFlag) *fakeFlagStore {
	s := &fakeFlagStore{flags: make(map[string]*domain.FeatureFlag)}
	for _, f := range existing {
		s.flags[f.FlagKey] = f
	}
	return s
}

func (f *fakeFlagStore) GetByKey(ctx context.Context, flagKey string) (*domain.FeatureFlag, error) {
	flag, ok := f.flags[flagKey]
	if !ok {
		return nil, errors.NotFound("feature flag")
	}
	return flag, nil
}

func (f *fakeFlagStore) Create(ctx context.Context, flag *domain.FeatureFlag) error {
	flag.ID = "flag-" + flag.FlagKey
	f.created = append(f.created, flag)
	f.flags[flag.FlagKey] = flag
	return nil
}

func (f *fakeFlagStore) Update(ctx context.Context, flag *domain.FeatureFlag) error {
	f.updated = append(f.updated, flag)
	return nil
}

func (f *fakeFlagStore) Deprecate(ctx context.Context, flagKey string) error {
	f.deprecated = append(f.deprecated, flagKey)
	return nil
}

func (f *fakeFlagStore) SetOverride(ctx context.Context, ov *domain.FeatureFlagOverride) error {
	f.overrides = append(f.overrides, ov)
	return nil
}

type fakeEvaluator struct {
	result bool
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, flagKey, orgID, userID, sector string) bool {
	return f.result
}

func newFlagService(store *fakeFlagStore, audit *testutil.MockRecorder) *service.FlagService {
	return service.NewFlagService(store, &fakeEvaluator{result: true}, nil, audit, logger.Nop())
}

func TestFlagCreateDefaults(t *testing.T) {
	audit := testutil.NewMockRecorder()
	store := newFakeFlagStore()
	svc := newFlagService(store, audit)

	flag := &domain.FeatureFlag{FlagKey: "live_data_enabled", RolloutPercentage: 25}
	require.NoError(t, svc.Create(testutil.ActorContext("admin-1"), flag))

	require.Len(t, store.created, 1)
	assert.Equal(t, domain.FlagActive, flag.Status)
	assert.Equal(t, domain.ScopeGlobal, flag.Scope)
	assert.Equal(t, "admin-1", flag.CreatedBy)
	audit.AssertRecorded(t, messaging.EventFlagCreated)
}

func TestFlagCreateValidation(t *testing.T) {
	audit := testutil.NewMockRecorder()
	store := newFakeFlagStore()
	svc := newFlagService(store, audit)

	tests := []struct {
		name string
		flag *domain.FeatureFlag
	}{
		{"missing key", &domain.FeatureFlag{RolloutPercentage: 10}},
		{"rollout below zero", &domain.FeatureFlag{FlagKey: "f", RolloutPercentage: -1}},
		{"rollout above hundred", &domain.FeatureFlag{FlagKey: "f", RolloutPercentage: 101}},
		{"unknown scope", &domain.FeatureFlag{FlagKey: "f", Scope: domain.FlagScope("planet")}},
		{"unknown status", &domain.FeatureFlag{FlagKey: "f", Status: domain.FlagStatus("ON")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(testutil.TenantContext(), tt.flag)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
	assert.Empty(t, store.created)
	audit.AssertNothingRecorded(t)
}

func TestFlagUpdateEmitsAudit(t *testing.T) {
	audit := testutil.NewMockRecorder()
	existing := &domain.FeatureFlag{ID: "flag-1", FlagKey: "live_data_enabled", Status: domain.FlagActive}
	store := newFakeFlagStore(existing)
	svc := newFlagService(store, audit)

	existing.RolloutPercentage = 75
	require.NoError(t, svc.Update(testutil.ActorContext("admin-1"), existing))

	require.Len(t, store.updated, 1)
	audit.AssertRecorded(t, messaging.EventFlagUpdated)
	payload := audit.Last().Payload.(messaging.FlagChangedEvent)
	assert.Equal(t, 75, payload.RolloutPercentage)
	assert.Equal(t, "admin-1", payload.ChangedBy)
}

func TestFlagDeprecate(t *testing.T) {
	audit := testutil.NewMockRecorder()
	store := newFakeFlagStore()
	svc := newFlagService(store, audit)

	require.NoError(t, svc.Deprecate(testutil.ActorContext("admin-1"), "live_data_enabled"))

	assert.Equal(t, []string{"live_data_enabled"}, store.deprecated)
	audit.AssertRecorded(t, messaging.EventFlagDeprecated)
	payload := audit.Last().Payload.(messaging.FlagChangedEvent)
	assert.Equal(t, string(domain.FlagDeprecated), payload.Status)
}

func TestSetOverrideResolvesFlagID(t *testing.T) {
	audit := testutil.NewMockRecorder()
	existing := &domain.FeatureFlag{ID: "flag-1", FlagKey: "live_data_enabled", Status: domain.FlagActive}
	store := newFakeFlagStore(existing)
	svc := newFlagService(store, audit)

	user := testutil.TestUserID
	ov := &domain.FeatureFlagOverride{UserID: &user, IsEnabled: true}
	require.NoError(t, svc.SetOverride(testutil.ActorContext("admin-1"), "live_data_enabled", ov))

	require.Len(t, store.overrides, 1)
	assert.Equal(t, "flag-1", store.overrides[0].FeatureFlagID)
	assert.Equal(t, "admin-1", store.overrides[0].CreatedBy)
	audit.AssertRecorded(t, messaging.EventFlagOverrideSet)
}

func TestSetOverrideUnknownFlag(t *testing.T) {
	audit := testutil.NewMockRecorder()
	store := newFakeFlagStore()
	svc := newFlagService(store, audit)

	user := testutil.TestUserID
	err := svc.SetOverride(testutil.TenantContext(), "no_such_flag", &domain.FeatureFlagOverride{UserID: &user})

	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Empty(t, store.overrides)
	audit.AssertNothingRecorded(t)
}

func TestFlagEvaluateDelegates(t *testing.T) {
	audit := testutil.NewMockRecorder()
	svc := service.NewFlagService(newFakeFlagStore(), &fakeEvaluator{result: true}, nil, audit, logger.Nop())

	assert.True(t, svc.Evaluate(context.Background(), "live_data_enabled", "org-1", "user-1", ""))
}
