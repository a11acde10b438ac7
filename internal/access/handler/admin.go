package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/httputil"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// AdminHandler handles hierarchy, role and override administration endpoints
type AdminHandler struct {
	service *service.AdminService
	logger  *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *service.AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: svc,
		logger:  log,
	}
}

type createNodeRequest struct {
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	Level    string  `json:"level" validate:"required,oneof=organization location department user_group"`
}

// CreateNode creates a hierarchy node
func (h *AdminHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	node := &domain.HierarchyNode{
		ParentID: req.ParentID,
		Name:     req.Name,
		Level:    domain.HierarchyLevel(req.Level),
	}
	if err := h.service.CreateNode(r.Context(), node); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, node)
}

// GetNode returns a hierarchy node
func (h *AdminHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	node, err := h.service.GetNode(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, node)
}

// DeactivateNode marks a hierarchy node inactive
func (h *AdminHandler) DeactivateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeactivateNode(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

type assignRoleRequest struct {
	Role               string   `json:"role" validate:"required"`
	Permissions        []string `json:"permissions" validate:"required,min=1"`
	InheritsFromParent *bool    `json:"inherits_from_parent,omitempty"`
}

// AssignRole attaches a role with a permission set at a node
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")

	var req assignRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	inherits := true
	if req.InheritsFromParent != nil {
		inherits = *req.InheritsFromParent
	}
	ra := &domain.RoleAssignment{
		HierarchyNodeID:    nodeID,
		Role:               tenant.Role(req.Role),
		Permissions:        req.Permissions,
		InheritsFromParent: inherits,
	}
	if err := h.service.AssignRole(r.Context(), ra); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ra)
}

type assignUserRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	Role      string `json:"role" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// AssignUser places a user at a hierarchy node
func (h *AdminHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")

	var req assignUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	ua := &domain.UserHierarchyAssignment{
		UserID:          req.UserID,
		HierarchyNodeID: nodeID,
		Role:            tenant.Role(req.Role),
		IsPrimary:       req.IsPrimary,
	}
	if err := h.service.AssignUser(r.Context(), ua); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ua)
}

type grantOverrideRequest struct {
	UserID     string  `json:"user_id" validate:"required,uuid"`
	NodeID     string  `json:"node_id" validate:"required,uuid"`
	Permission string  `json:"permission" validate:"required"`
	Granted    bool    `json:"granted"`
	Reason     *string `json:"reason,omitempty"`
}

// GrantOverride writes a per-user permission override at a node
func (h *AdminHandler) GrantOverride(w http.ResponseWriter, r *http.Request) {
	var req grantOverrideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	ov := &domain.PermissionOverride{
		UserID:          req.UserID,
		HierarchyNodeID: req.NodeID,
		Permission:      req.Permission,
		Granted:         req.Granted,
		Reason:          req.Reason,
	}
	if err := h.service.GrantOverride(r.Context(), ov); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ov)
}

type revokeOverrideRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	NodeID     string `json:"node_id" validate:"required,uuid"`
	Permission string `json:"permission" validate:"required"`
}

// RevokeOverride deactivates a permission override
func (h *AdminHandler) RevokeOverride(w http.ResponseWriter, r *http.Request) {
	var req revokeOverrideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.RevokeOverride(r.Context(), req.UserID, req.NodeID, req.Permission); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
