// Package permissions defines the closed set of permission keys known to the
// platform and utilities for matching them against role permission sets.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "pricing.*")
//   - "resource.action" - Specific action (e.g., "pricing.edit")
//
// Unknown keys are rejected at write time so a typo in an override can never
// silently grant or deny nothing.
package permissions

import (
	"strings"
)

// Wildcard grants every permission.
const Wildcard = "*"

// Known is the closed enumeration of permission keys.
// Overrides and role assignments are validated against this list at write time.
var Known = []string{
	// Market data permissions
	"market.data.read",
	"market.data.export",
	"market.reports.read",
	"market.reports.generate",
	"market.*",

	// Pricing permissions
	"pricing.read",
	"pricing.edit",
	"pricing.publish",
	"pricing.*",

	// Competitor intelligence permissions
	"competitors.read",
	"competitors.track",
	"competitors.*",

	// Organization administration
	"org.users.read",
	"org.users.manage",
	"org.hierarchy.manage",
	"org.roles.assign",
	"org.overrides.manage",
	"org.*",

	// Feature flag administration
	"flags.read",
	"flags.manage",
	"flags.*",

	// Audit access
	"audit.read",

	// Full access
	"*",
}

var knownSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Known))
	for _, p := range Known {
		m[p] = struct{}{}
	}
	return m
}()

// IsKnown reports whether perm is in the closed permission set.
// This is strict: no pattern fallback, the key must be registered.
func IsKnown(perm string) bool {
	_, ok := knownSet[perm]
	return ok
}

// Has checks if a permission set includes the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "pricing.*" matches "pricing.read", "pricing.edit", etc.
//   - Exact match for specific permissions
func Has(set []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range set {
		if p == "*" {
			return true
		}
		if p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAny checks if a permission set includes any of the required permissions.
func HasAny(set []string, required []string) bool {
	for _, req := range required {
		if Has(set, req) {
			return true
		}
	}
	return false
}

// Validate checks every key in a permission set against the closed enumeration.
// Returns the first unknown key and false when one is found.
func Validate(set []string) (string, bool) {
	for _, p := range set {
		if !IsKnown(p) {
			return p, false
		}
	}
	return "", true
}

// Merge merges multiple permission sets, removing duplicates.
func Merge(sets ...[]string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, set := range sets {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}

	return result
}

// Remove removes specific permissions from a set.
// Used when applying deny overrides to an effective permission list.
func Remove(set []string, toRemove []string) []string {
	removeSet := make(map[string]bool)
	for _, p := range toRemove {
		removeSet[p] = true
	}

	var result []string
	for _, p := range set {
		if !removeSet[p] {
			result = append(result, p)
		}
	}

	return result
}
