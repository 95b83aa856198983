package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/auth"
	"github.com/bazaarhq/storefront-saas/platform/go/logging"
	"github.com/bazaarhq/storefront-saas/platform/go/tenant"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the one-shot entitlement read for presentation surfaces that
// cannot hold a live subscription. Subscribed surfaces evaluate locally from
// pushed records and never hit this endpoint.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("entitlements service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the entitlement endpoint on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/entitlement", h.GetEntitlement)
}

// GetEntitlement implements GET /v1/entitlement for the authenticated caller.
// The resolution middleware stamps the storefront's tenant on the context;
// when present it scopes the request logs, since entitlement reports are
// almost always investigated per store.
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.UserFromContext(r.Context())
	if !ok || creds == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHENTICATED"})
		return
	}

	logger := logging.FromRequest(r, h.logger)
	if resolved, ok := tenant.FromContext(r.Context()); ok {
		logger = logger.With(
			zap.String("tenant_id", resolved.TenantID.String()),
			zap.String("tenant_slug", resolved.Slug),
		)
	}

	eff, err := h.svc.Evaluate(r.Context(), creds.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
			return
		}
		logger.Error("entitlement evaluation failed",
			zap.String("user_id", creds.ID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "STORE_UNAVAILABLE"})
		return
	}

	writeJSON(w, http.StatusOK, eff)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
