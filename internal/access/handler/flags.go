package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/httputil"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
)

// FlagHandler handles feature flag evaluation and administration endpoints
type FlagHandler struct {
	service *service.FlagService
	logger  *logger.Logger
}

// NewFlagHandler creates a new flag handler
func NewFlagHandler(svc *service.FlagService, log *logger.Logger) *FlagHandler {
	return &FlagHandler{
		service: svc,
		logger:  log,
	}
}

// Evaluate resolves a flag for the calling subject. The organisation defaults
// to the caller's tenant and the user to the caller's identity; both can be
// overridden by query parameters for service-to-service evaluation.
func (h *FlagHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	flagKey := chi.URLParam(r, "key")

	orgID := r.URL.Query().Get("organisation_id")
	userID := r.URL.Query().Get("user_id")
	sector := r.URL.Query().Get("sector")

	if scope, ok := tenant.FromContext(r.Context()); ok {
		if orgID == "" {
			orgID = scope.TenantID
		}
		if userID == "" {
			userID = scope.UserID
		}
	}

	enabled := h.service.Evaluate(r.Context(), flagKey, orgID, userID, sector)

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"flag_key": flagKey,
		"enabled":  enabled,
	})
}

// Get returns a flag definition
func (h *FlagHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	flag, err := h.service.Get(r.Context(), key)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, flag)
}

type flagRequest struct {
	FlagKey           string   `json:"flag_key" validate:"required,min=1,max=255"`
	Description       *string  `json:"description,omitempty"`
	IsEnabled         bool     `json:"is_enabled"`
	RolloutPercentage int      `json:"rollout_percentage" validate:"min=0,max=100"`
	Scope             string   `json:"scope,omitempty"`
	Status            string   `json:"status,omitempty"`
	AllowedSectors    []string `json:"allowed_sectors,omitempty"`
	BlockedSectors    []string `json:"blocked_sectors,omitempty"`
}

func (req *flagRequest) toDomain() *domain.FeatureFlag {
	return &domain.FeatureFlag{
		FlagKey:           req.FlagKey,
		Description:       req.Description,
		IsEnabled:         req.IsEnabled,
		RolloutPercentage: req.RolloutPercentage,
		Scope:             domain.FlagScope(req.Scope),
		Status:            domain.FlagStatus(req.Status),
		AllowedSectors:    req.AllowedSectors,
		BlockedSectors:    req.BlockedSectors,
	}
}

// Create registers a new feature flag
func (h *FlagHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	flag := req.toDomain()
	if err := h.service.Create(r.Context(), flag); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, flag)
}

// Update mutates a flag's rollout state and sector lists
func (h *FlagHandler) Update(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req flagRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.FlagKey = key
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	flag := req.toDomain()
	if err := h.service.Update(r.Context(), flag); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, flag)
}

// Deprecate retires a feature flag
func (h *FlagHandler) Deprecate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.service.Deprecate(r.Context(), key); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

type flagOverrideRequest struct {
	OrganisationID *string    `json:"organisation_id,omitempty" validate:"omitempty,uuid"`
	UserID         *string    `json:"user_id,omitempty" validate:"omitempty,uuid"`
	IsEnabled      bool       `json:"is_enabled"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// SetOverride pins a flag on or off for one organisation or one user
func (h *FlagHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req flagOverrideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	ov := &domain.FeatureFlagOverride{
		OrganisationID: req.OrganisationID,
		UserID:         req.UserID,
		IsEnabled:      req.IsEnabled,
		ExpiresAt:      req.ExpiresAt,
	}
	if err := h.service.SetOverride(r.Context(), key, ov); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ov)
}
