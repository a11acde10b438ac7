// Package handler exposes the access kernel over HTTP.
package handler

import (
	"net/http"

	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/httputil"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
)

// AccessHandler handles isolation checks and permission resolution endpoints
type AccessHandler struct {
	service *service.AccessService
	logger  *logger.Logger
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(svc *service.AccessService, log *logger.Logger) *AccessHandler {
	return &AccessHandler{
		service: svc,
		logger:  log,
	}
}

type authorizeRequest struct {
	Operation        string `json:"operation" validate:"required"`
	ResourceTenantID string `json:"resource_tenant_id" validate:"required,uuid"`
}

// Authorize checks tenant isolation for an operation against a resource
func (h *AccessHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Authorize(r.Context(), req.Operation, req.ResourceTenantID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

type resolveRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	NodeID     string `json:"node_id" validate:"required,uuid"`
	Permission string `json:"permission" validate:"required"`
}

type resolveResponse struct {
	Decision string `json:"decision"`
	Allowed  bool   `json:"allowed"`
}

// Resolve decides whether a user holds a permission at a hierarchy node
func (h *AccessHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	decision, err := h.service.Resolve(r.Context(), req.UserID, req.NodeID, req.Permission)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, resolveResponse{
		Decision: string(decision),
		Allowed:  decision.Allowed(),
	})
}

// EffectivePermissions lists the concrete permissions a user holds at a node
func (h *AccessHandler) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	nodeID := r.URL.Query().Get("node_id")
	if userID == "" || nodeID == "" {
		httputil.Error(w, errors.BadRequest("user_id and node_id query parameters are required"))
		return
	}

	perms, err := h.service.EffectivePermissions(r.Context(), userID, nodeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     userID,
		"node_id":     nodeID,
		"permissions": perms,
	})
}
