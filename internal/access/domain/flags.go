package domain

import (
	"time"

	"github.com/lib/pq"
)

// FlagScope narrows where a feature flag applies.
type FlagScope string

const (
	ScopeGlobal       FlagScope = "GLOBAL"
	ScopeOrganisation FlagScope = "ORGANISATION"
	ScopeSector       FlagScope = "SECTOR"
	ScopeUser         FlagScope = "USER"
)

// Valid reports whether s is a known flag scope.
func (s FlagScope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeOrganisation, ScopeSector, ScopeUser:
		return true
	}
	return false
}

// FlagStatus is the lifecycle state of a feature flag.
// Flags are never hard-deleted; they transition to DEPRECATED instead.
type FlagStatus string

const (
	FlagActive     FlagStatus = "ACTIVE"
	FlagInactive   FlagStatus = "INACTIVE"
	FlagDeprecated FlagStatus = "DEPRECATED"
)

// Valid reports whether s is a known flag status.
func (s FlagStatus) Valid() bool {
	switch s {
	case FlagActive, FlagInactive, FlagDeprecated:
		return true
	}
	return false
}

// FeatureFlag is a named behavior switch with scoped targeting and
// deterministic percentage rollout.
type FeatureFlag struct {
	ID                string         `json:"id" db:"id"`
	FlagKey           string         `json:"flag_key" db:"flag_key"`
	Description       *string        `json:"description,omitempty" db:"description"`
	IsEnabled         bool           `json:"is_enabled" db:"is_enabled"`
	RolloutPercentage int            `json:"rollout_percentage" db:"rollout_percentage"`
	Scope             FlagScope      `json:"scope" db:"scope"`
	Status            FlagStatus     `json:"status" db:"status"`
	AllowedSectors    pq.StringArray `json:"allowed_sectors" db:"allowed_sectors"`
	BlockedSectors    pq.StringArray `json:"blocked_sectors" db:"blocked_sectors"`
	CreatedBy         string         `json:"created_by" db:"created_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// SectorAllowed applies the flag's sector lists: a blocked sector always
// loses, and a non-empty allow list admits only its members. Evaluated after
// overrides and before the rollout computation.
func (f *FeatureFlag) SectorAllowed(sector string) bool {
	for _, s := range f.BlockedSectors {
		if s == sector {
			return false
		}
	}
	if len(f.AllowedSectors) == 0 {
		return true
	}
	for _, s := range f.AllowedSectors {
		if s == sector {
			return true
		}
	}
	return false
}

// FeatureFlagOverride pins a flag on or off for one organisation or one user.
// Exactly one of OrganisationID/UserID is set per row. User-level overrides
// take precedence over organisation-level ones.
type FeatureFlagOverride struct {
	ID             string     `json:"id" db:"id"`
	FeatureFlagID  string     `json:"feature_flag_id" db:"feature_flag_id"`
	OrganisationID *string    `json:"organisation_id,omitempty" db:"organisation_id"`
	UserID         *string    `json:"user_id,omitempty" db:"user_id"`
	IsEnabled      bool       `json:"is_enabled" db:"is_enabled"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedBy      string     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the override has lapsed at the given instant.
// Expired overrides are treated as absent.
func (o *FeatureFlagOverride) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// IsUserLevel reports whether the override targets a single user.
func (o *FeatureFlagOverride) IsUserLevel() bool {
	return o.UserID != nil && *o.UserID != ""
}
