package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
)

// FlagRepository persists feature flags and their overrides.
//
// Flags are platform-global configuration keyed by organisation/user in their
// overrides, not tenant-scoped rows, so these queries run outside RLS. Outside
// RLS there is no SET LOCAL search_path either, so every table name here is
// schema-qualified.
type FlagRepository struct {
	db *database.DB
}

// NewFlagRepository creates a new flag repository
func NewFlagRepository(db *database.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

const flagColumns = `id, flag_key, description, is_enabled, rollout_percentage, scope, status, allowed_sectors, blocked_sectors, created_by, created_at, updated_at`

// GetByKey gets a feature flag by its unique key
func (r *FlagRepository) GetByKey(ctx context.Context, flagKey string) (*domain.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM access.feature_flags WHERE flag_key = $1`

	var flag domain.FeatureFlag
	if err := r.db.QueryRowxContext(ctx, query, flagKey).StructScan(&flag); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("feature flag")
		}
		return nil, err
	}
	return &flag, nil
}

// Create inserts a new feature flag
func (r *FlagRepository) Create(ctx context.Context, flag *domain.FeatureFlag) error {
	if flag.ID == "" {
		flag.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	normalizeSectors(flag)

	query := `
		INSERT INTO access.feature_flags (id, flag_key, description, is_enabled, rollout_percentage, scope, status, allowed_sectors, blocked_sectors, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		flag.ID, flag.FlagKey, flag.Description, flag.IsEnabled, flag.RolloutPercentage,
		flag.Scope, flag.Status, flag.AllowedSectors, flag.BlockedSectors,
		flag.CreatedBy, flag.CreatedAt, flag.UpdatedAt,
	); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Update mutates an existing flag's rollout state and sector lists
func (r *FlagRepository) Update(ctx context.Context, flag *domain.FeatureFlag) error {
	flag.UpdatedAt = time.Now().UTC()
	normalizeSectors(flag)

	query := `
		UPDATE access.feature_flags
		SET is_enabled = $2, rollout_percentage = $3, scope = $4, status = $5,
		    allowed_sectors = $6, blocked_sectors = $7, description = $8, updated_at = $9
		WHERE flag_key = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		flag.FlagKey, flag.IsEnabled, flag.RolloutPercentage, flag.Scope, flag.Status,
		flag.AllowedSectors, flag.BlockedSectors, flag.Description, flag.UpdatedAt,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("feature flag")
	}
	return nil
}

// normalizeSectors replaces nil sector lists with empty arrays. A nil
// pq.StringArray writes SQL NULL, and the sector columns are NOT NULL.
func normalizeSectors(flag *domain.FeatureFlag) {
	if flag.AllowedSectors == nil {
		flag.AllowedSectors = pq.StringArray{}
	}
	if flag.BlockedSectors == nil {
		flag.BlockedSectors = pq.StringArray{}
	}
}

// Deprecate transitions a flag to DEPRECATED. Flags are never hard-deleted.
func (r *FlagRepository) Deprecate(ctx context.Context, flagKey string) error {
	query := `UPDATE access.feature_flags SET status = $2, updated_at = $3 WHERE flag_key = $1`
	res, err := r.db.ExecContext(ctx, query, flagKey, domain.FlagDeprecated, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("feature flag")
	}
	return nil
}

// Overrides returns the overrides matching this flag for the given
// organisation and user in a single round trip. The evaluator applies
// user-before-organisation precedence.
func (r *FlagRepository) Overrides(ctx context.Context, flagID, orgID, userID string) ([]*domain.FeatureFlagOverride, error) {
	query := `
		SELECT id, feature_flag_id, organisation_id, user_id, is_enabled, expires_at, created_by, created_at
		FROM access.feature_flag_overrides
		WHERE feature_flag_id = $1 AND (user_id = $2 OR organisation_id = $3)
	`
	rows, err := r.db.QueryxContext(ctx, query, flagID, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []*domain.FeatureFlagOverride
	for rows.Next() {
		var ov domain.FeatureFlagOverride
		if err := rows.StructScan(&ov); err != nil {
			return nil, err
		}
		overrides = append(overrides, &ov)
	}
	return overrides, rows.Err()
}

// SetOverride replaces the override for the flag and target (organisation or
// user) atomically: delete-then-insert in one transaction so a reader never
// observes a half-applied override.
func (r *FlagRepository) SetOverride(ctx context.Context, ov *domain.FeatureFlagOverride) error {
	hasOrg := ov.OrganisationID != nil && *ov.OrganisationID != ""
	hasUser := ov.UserID != nil && *ov.UserID != ""
	if hasOrg == hasUser {
		return errors.InvalidOverride(map[string]string{
			"target": "exactly one of organisation_id or user_id must be set",
		})
	}

	if ov.ID == "" {
		ov.ID = uuid.New().String()
	}
	ov.CreatedAt = time.Now().UTC()

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var del string
		var target interface{}
		if hasUser {
			del = `DELETE FROM access.feature_flag_overrides WHERE feature_flag_id = $1 AND user_id = $2`
			target = *ov.UserID
		} else {
			del = `DELETE FROM access.feature_flag_overrides WHERE feature_flag_id = $1 AND organisation_id = $2`
			target = *ov.OrganisationID
		}
		if _, err := tx.ExecContext(ctx, del, ov.FeatureFlagID, target); err != nil {
			return err
		}

		insert := `
			INSERT INTO access.feature_flag_overrides (id, feature_flag_id, organisation_id, user_id, is_enabled, expires_at, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, insert,
			ov.ID, ov.FeatureFlagID, ov.OrganisationID, ov.UserID,
			ov.IsEnabled, ov.ExpiresAt, ov.CreatedBy, ov.CreatedAt,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}
