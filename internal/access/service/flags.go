package service

import (
	"context"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/flags"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
)

// FlagStore persists feature flags and their overrides.
type FlagStore interface {
	GetByKey(ctx context.Context, flagKey string) (*domain.FeatureFlag, error)
	Create(ctx context.Context, flag *domain.FeatureFlag) error
	Update(ctx context.Context, flag *domain.FeatureFlag) error
	Deprecate(ctx context.Context, flagKey string) error
	SetOverride(ctx context.Context, ov *domain.FeatureFlagOverride) error
}

// FlagEvaluator evaluates a flag for a subject.
type FlagEvaluator interface {
	Evaluate(ctx context.Context, flagKey, orgID, userID, sector string) bool
}

// FlagService is the flag administration and evaluation surface. Mutations
// invalidate the definition cache so readers converge within one TTL.
type FlagService struct {
	store     FlagStore
	evaluator FlagEvaluator
	cache     *flags.Cache
	audit     Recorder
	logger    *logger.Logger
}

// NewFlagService creates a new flag service
func NewFlagService(store FlagStore, evaluator FlagEvaluator, cache *flags.Cache, audit Recorder, log *logger.Logger) *FlagService {
	return &FlagService{
		store:     store,
		evaluator: evaluator,
		cache:     cache,
		audit:     audit,
		logger:    log.WithComponent("flag-service"),
	}
}

// Evaluate resolves the flag for the subject. Always a boolean, never an error.
func (s *FlagService) Evaluate(ctx context.Context, flagKey, orgID, userID, sector string) bool {
	return s.evaluator.Evaluate(ctx, flagKey, orgID, userID, sector)
}

// Get returns a flag definition by key.
func (s *FlagService) Get(ctx context.Context, flagKey string) (*domain.FeatureFlag, error) {
	return s.store.GetByKey(ctx, flagKey)
}

// Create registers a new feature flag.
func (s *FlagService) Create(ctx context.Context, flag *domain.FeatureFlag) error {
	if err := validateFlag(flag); err != nil {
		return err
	}
	if flag.Status == "" {
		flag.Status = domain.FlagActive
	}
	if flag.Scope == "" {
		flag.Scope = domain.ScopeGlobal
	}
	if flag.CreatedBy == "" {
		flag.CreatedBy = actorID(ctx)
	}

	if err := s.store.Create(ctx, flag); err != nil {
		return err
	}

	s.recordChange(messaging.EventFlagCreated, flag, actorID(ctx))
	return nil
}

// Update mutates a flag's rollout state, sector lists and description.
func (s *FlagService) Update(ctx context.Context, flag *domain.FeatureFlag) error {
	if err := validateFlag(flag); err != nil {
		return err
	}

	if err := s.store.Update(ctx, flag); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, flag.FlagKey)
	s.recordChange(messaging.EventFlagUpdated, flag, actorID(ctx))
	return nil
}

// Deprecate retires a flag. Deprecated flags evaluate to off for everyone
// but keep their row and overrides for the audit trail.
func (s *FlagService) Deprecate(ctx context.Context, flagKey string) error {
	if err := s.store.Deprecate(ctx, flagKey); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, flagKey)
	s.audit.Record(messaging.EventFlagDeprecated, messaging.FlagChangedEvent{
		FlagKey:   flagKey,
		Status:    string(domain.FlagDeprecated),
		ChangedBy: actorID(ctx),
	})
	return nil
}

// SetOverride pins a flag on or off for one organisation or one user.
func (s *FlagService) SetOverride(ctx context.Context, flagKey string, ov *domain.FeatureFlagOverride) error {
	flag, err := s.store.GetByKey(ctx, flagKey)
	if err != nil {
		return err
	}
	ov.FeatureFlagID = flag.ID
	if ov.CreatedBy == "" {
		ov.CreatedBy = actorID(ctx)
	}

	if err := s.store.SetOverride(ctx, ov); err != nil {
		return err
	}

	s.audit.Record(messaging.EventFlagOverrideSet, messaging.FlagOverrideSetEvent{
		FlagKey:        flagKey,
		OrganisationID: ov.OrganisationID,
		UserID:         ov.UserID,
		IsEnabled:      ov.IsEnabled,
		ExpiresAt:      ov.ExpiresAt,
		SetBy:          ov.CreatedBy,
	})
	return nil
}

func (s *FlagService) recordChange(eventType string, flag *domain.FeatureFlag, by string) {
	s.audit.Record(eventType, messaging.FlagChangedEvent{
		FlagKey:           flag.FlagKey,
		Status:            string(flag.Status),
		IsEnabled:         flag.IsEnabled,
		RolloutPercentage: flag.RolloutPercentage,
		ChangedBy:         by,
	})
}

func validateFlag(flag *domain.FeatureFlag) error {
	details := make(map[string]string)
	if flag.FlagKey == "" {
		details["flag_key"] = "flag_key is required"
	}
	if flag.RolloutPercentage < 0 || flag.RolloutPercentage > 100 {
		details["rollout_percentage"] = "must be between 0 and 100"
	}
	if flag.Scope != "" && !flag.Scope.Valid() {
		details["scope"] = "unknown flag scope"
	}
	if flag.Status != "" && !flag.Status.Valid() {
		details["status"] = "unknown flag status"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
