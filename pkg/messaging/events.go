package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Audit events (compliance trail)
	EventAccessDenied     = "access.denied"
	EventOverrideGranted  = "access.override.granted"
	EventOverrideRevoked  = "access.override.revoked"
	EventRoleAssigned     = "access.role.assigned"
	EventNodeCreated      = "access.hierarchy.node.created"
	EventFlagCreated      = "access.flag.created"
	EventFlagUpdated      = "access.flag.updated"
	EventFlagDeprecated   = "access.flag.deprecated"
	EventFlagOverrideSet  = "access.flag.override.set"
	EventHierarchyCorrupt = "access.hierarchy.corruption"

	// Usage events (analytics)
	EventFlagEvaluated = "access.flag.evaluated"
)

// Exchange names
const (
	ExchangeAccessEvents = "access.events"
)

// Severity levels for audit events
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Event is the base event structure
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// AccessDeniedEvent is published when the row policy guard denies an operation
type AccessDeniedEvent struct {
	Operation        string `json:"operation"`
	ResourceTenantID string `json:"resource_tenant_id"`
	ContextTenantID  string `json:"context_tenant_id"`
	UserID           string `json:"user_id"`
	Role             string `json:"role"`
	Severity         string `json:"severity"`
}

// OverrideChangedEvent is published when a permission override is granted or revoked
type OverrideChangedEvent struct {
	UserID          string  `json:"user_id"`
	HierarchyNodeID string  `json:"hierarchy_node_id"`
	Permission      string  `json:"permission"`
	Granted         bool    `json:"granted"`
	Reason          *string `json:"reason,omitempty"`
	GrantedBy       string  `json:"granted_by"`
	TenantID        string  `json:"tenant_id"`
}

// RoleAssignedEvent is published when a role is assigned at a hierarchy node
type RoleAssignedEvent struct {
	HierarchyNodeID    string   `json:"hierarchy_node_id"`
	Role               string   `json:"role"`
	Permissions        []string `json:"permissions"`
	InheritsFromParent bool     `json:"inherits_from_parent"`
	TenantID           string   `json:"tenant_id"`
	AssignedBy         string   `json:"assigned_by"`
}

// NodeCreatedEvent is published when a hierarchy node is created
type NodeCreatedEvent struct {
	NodeID   string `json:"node_id"`
	ParentID string `json:"parent_id,omitempty"`
	Level    string `json:"level"`
	Path     string `json:"path"`
	Depth    int    `json:"depth"`
	TenantID string `json:"tenant_id"`
}

// FlagChangedEvent is published when a feature flag is created, updated or deprecated
type FlagChangedEvent struct {
	FlagKey           string `json:"flag_key"`
	Status            string `json:"status"`
	IsEnabled         bool   `json:"is_enabled"`
	RolloutPercentage int    `json:"rollout_percentage"`
	ChangedBy         string `json:"changed_by"`
}

// FlagOverrideSetEvent is published when a flag override is set
type FlagOverrideSetEvent struct {
	FlagKey        string     `json:"flag_key"`
	OrganisationID *string    `json:"organisation_id,omitempty"`
	UserID         *string    `json:"user_id,omitempty"`
	IsEnabled      bool       `json:"is_enabled"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	SetBy          string     `json:"set_by"`
}

// FlagEvaluatedEvent records a single flag evaluation outcome for analytics
type FlagEvaluatedEvent struct {
	FlagKey        string    `json:"flag_key"`
	OrganisationID string    `json:"organisation_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Sector         string    `json:"sector,omitempty"`
	Enabled        bool      `json:"enabled"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// HierarchyCorruptionEvent alerts monitoring that a structural invariant broke
type HierarchyCorruptionEvent struct {
	NodeID   string `json:"node_id"`
	Reason   string `json:"reason"`
	TenantID string `json:"tenant_id"`
}
