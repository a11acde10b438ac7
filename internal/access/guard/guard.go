// Package guard enforces tenant isolation for every scoped read or write.
package guard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zebra-devops/marketedge-access-kernel/pkg/config"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// maxTrackedPrincipals bounds the probing-detection map. When exceeded the
// map is reset; losing escalation state is acceptable, growing without bound
// is not.
const maxTrackedPrincipals = 4096

// Recorder receives denial events for the compliance trail.
type Recorder interface {
	Record(eventType string, data interface{})
}

// Guard is the row policy guard. It decides tenant isolation from the
// request-scoped tenant context alone and never touches the store, so it
// cannot fail open on store outage: no context means deny.
type Guard struct {
	audit  Recorder
	logger *logger.Logger

	denyEvery rate.Limit
	denyBurst int

	mu     sync.Mutex
	probes map[string]*rate.Limiter
}

// New creates a guard. Repeated denials from one principal inside the
// configured window escalate the emitted audit severity to high.
func New(audit Recorder, cfg *config.KernelConfig, log *logger.Logger) *Guard {
	window := cfg.DenyWindow
	if window <= 0 {
		window = time.Minute
	}
	burst := cfg.DenyBurst
	if burst <= 0 {
		burst = 5
	}
	return &Guard{
		audit:     audit,
		logger:    log.WithComponent("guard"),
		denyEvery: rate.Every(window),
		denyBurst: burst,
		probes:    make(map[string]*rate.Limiter),
	}
}

// Authorize checks whether the active tenant context may touch a resource
// belonging to resourceTenantID.
//
// Allow iff the resource tenant equals the context tenant, or the principal
// is a super_admin with cross-tenant access explicitly enabled for this call.
// A missing or empty context denies: there is no degraded mode, the guard
// fails closed. This holds even for a super_admin with cross-tenant enabled;
// escalated access still requires a home tenant, so every denial and every
// cross-tenant grant names a fully attributed principal.
func (g *Guard) Authorize(ctx context.Context, operation, resourceTenantID string) error {
	scope, ok := tenant.FromContext(ctx)
	if !ok || scope.TenantID == "" {
		g.deny(operation, resourceTenantID, scope)
		return errors.TenantMismatch(operation)
	}

	if resourceTenantID != "" && resourceTenantID == scope.TenantID {
		return nil
	}

	if scope.Role == tenant.RoleSuperAdmin && scope.AllowCrossTenant {
		return nil
	}

	g.deny(operation, resourceTenantID, scope)
	return errors.TenantMismatch(operation)
}

func (g *Guard) deny(operation, resourceTenantID string, scope tenant.Scope) {
	severity := messaging.SeverityMedium
	if g.probing(scope) {
		severity = messaging.SeverityHigh
	}

	g.logger.Warn().
		Str("operation", operation).
		Str("resource_tenant_id", resourceTenantID).
		Str("context_tenant_id", scope.TenantID).
		Str("user_id", scope.UserID).
		Str("severity", severity).
		Msg("tenant access denied")

	g.audit.Record(messaging.EventAccessDenied, messaging.AccessDeniedEvent{
		Operation:        operation,
		ResourceTenantID: resourceTenantID,
		ContextTenantID:  scope.TenantID,
		UserID:           scope.UserID,
		Role:             string(scope.Role),
		Severity:         severity,
	})
}

// probing reports whether this principal has exceeded the allowed denial
// burst inside the window. Each denial consumes a token; once exhausted,
// further denials are flagged until tokens refill.
func (g *Guard) probing(scope tenant.Scope) bool {
	key := scope.TenantID + ":" + scope.UserID
	if key == ":" {
		key = "anonymous"
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.probes) >= maxTrackedPrincipals {
		g.probes = make(map[string]*rate.Limiter)
	}
	limiter, ok := g.probes[key]
	if !ok {
		limiter = rate.NewLimiter(g.denyEvery, g.denyBurst)
		g.probes[key] = limiter
	}
	return !limiter.Allow()
}
