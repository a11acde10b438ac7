// Package flags evaluates feature flags with deterministic percentage
// rollout and override precedence.
package flags

import (
	"context"
	"time"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
)

// Store loads flag definitions and their overrides.
type Store interface {
	GetByKey(ctx context.Context, flagKey string) (*domain.FeatureFlag, error)
	Overrides(ctx context.Context, flagID, orgID, userID string) ([]*domain.FeatureFlagOverride, error)
}

// Recorder receives evaluation usage events.
type Recorder interface {
	Record(eventType string, data interface{})
}

// Evaluator answers "is this flag on for this subject" as a boolean, never
// an error. An unknown flag, a store outage or any other failure evaluates
// to false: a flag that cannot be read is a flag that is off.
type Evaluator struct {
	store  Store
	cache  *Cache
	usage  Recorder
	logger *logger.Logger
	now    func() time.Time
}

// NewEvaluator creates an evaluator. cache may be nil.
func NewEvaluator(store Store, cache *Cache, usage Recorder, log *logger.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		cache:  cache,
		usage:  usage,
		logger: log.WithComponent("flag-evaluator"),
		now:    time.Now,
	}
}

// Evaluate resolves the flag for the given subject. Precedence, first match
// wins:
//
//  1. unknown flag, or status not ACTIVE: off
//  2. unexpired user-level override: its value
//  3. unexpired organisation-level override: its value
//  4. sector blocked, or absent from a non-empty allow list: off
//  5. is_enabled false: off
//  6. rollout bucket of (flag_key, subject) < rollout_percentage
//
// The rollout subject is the user ID when present, otherwise the
// organisation ID, so a user's experience is stable across their sessions.
func (e *Evaluator) Evaluate(ctx context.Context, flagKey, orgID, userID, sector string) bool {
	enabled := e.evaluate(ctx, flagKey, orgID, userID, sector)

	e.usage.Record(messaging.EventFlagEvaluated, messaging.FlagEvaluatedEvent{
		FlagKey:        flagKey,
		OrganisationID: orgID,
		UserID:         userID,
		Sector:         sector,
		Enabled:        enabled,
		EvaluatedAt:    e.now().UTC(),
	})
	return enabled
}

func (e *Evaluator) evaluate(ctx context.Context, flagKey, orgID, userID, sector string) bool {
	flag, ok := e.cache.Get(ctx, flagKey)
	if !ok {
		var err error
		flag, err = e.store.GetByKey(ctx, flagKey)
		if err != nil {
			e.logger.Warn().Err(err).Str("flag_key", flagKey).Msg("flag lookup failed, evaluating to off")
			return false
		}
		e.cache.Set(ctx, flag)
	}

	if flag.Status != domain.FlagActive {
		return false
	}

	if ov, found := e.override(ctx, flag, orgID, userID); found {
		return ov
	}

	if !flag.SectorAllowed(sector) {
		return false
	}

	if !flag.IsEnabled {
		return false
	}

	subject := userID
	if subject == "" {
		subject = orgID
	}
	return Bucket(flag.FlagKey, subject) < flag.RolloutPercentage
}

// override returns the decisive override value if an unexpired one exists.
// User-level overrides outrank organisation-level ones. An override failure
// is treated as no override rather than failing the evaluation, since the
// flag definition itself was readable.
func (e *Evaluator) override(ctx context.Context, flag *domain.FeatureFlag, orgID, userID string) (bool, bool) {
	overrides, err := e.store.Overrides(ctx, flag.ID, orgID, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("flag_key", flag.FlagKey).Msg("flag override lookup failed, ignoring overrides")
		return false, false
	}

	now := e.now()
	var orgLevel *domain.FeatureFlagOverride
	for _, ov := range overrides {
		if ov.Expired(now) {
			continue
		}
		if ov.IsUserLevel() {
			if userID != "" && ov.UserID != nil && *ov.UserID == userID {
				return ov.IsEnabled, true
			}
			continue
		}
		if orgID != "" && ov.OrganisationID != nil && *ov.OrganisationID == orgID {
			orgLevel = ov
		}
	}
	if orgLevel != nil {
		return orgLevel.IsEnabled, true
	}
	return false, false
}
