package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/domains/tenants/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/logging"
)

// Error codes surfaced to resolution clients.
const (
	codeNotFound   = "NOT_FOUND"
	codeNoSlug     = "NO_SLUG"
	codeBadRequest = "BAD_REQUEST"
	codeInternal   = "STORE_UNAVAILABLE"
)

// resolutionResponse is the public projection of a resolved tenant.
type resolutionResponse struct {
	TenantID      string         `json:"tenantId"`
	Slug          string         `json:"slug"`
	CustomDomain  *string        `json:"customDomain,omitempty"`
	DisplayName   *string        `json:"displayName,omitempty"`
	EffectivePlan string         `json:"effectivePlan"`
	PublicData    map[string]any `json:"publicData,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the resolution endpoints: the network fallback used by
// storefront clients that hold no local tenant record.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the resolution endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/resolution", h.ResolveByDomain)
	r.Get("/v1/resolution/slug/{slug}", h.ResolveBySlug)
}

// ResolveByDomain implements GET /v1/resolution?domain=shop.example.com.
func (h *Handler) ResolveByDomain(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeBadRequest})
		return
	}

	t, err := h.svc.Resolve(r.Context(), service.RequestContext{Host: domain})
	if err != nil {
		h.writeResolutionError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(t))
}

// ResolveBySlug implements GET /v1/resolution/slug/{slug}, the shared-host
// path. The request host decides the mode, so a call against a custom domain
// ignores the slug by design of the classifier.
func (h *Handler) ResolveBySlug(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Resolve(r.Context(), service.RequestContext{
		Host:     r.Host,
		PathSlug: chi.URLParam(r, "slug"),
	})
	if err != nil {
		h.writeResolutionError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) writeResolutionError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoSlugProvided):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeNoSlug})
	case errors.Is(err, service.ErrNotFound):
		// Terminal for the caller: render "store not found", do not retry.
		writeJSON(w, http.StatusNotFound, errorResponse{Error: codeNotFound})
	default:
		logging.FromRequest(r, h.logger).Error("tenant resolution failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: codeInternal})
	}
}

func toResponse(t service.Tenant) resolutionResponse {
	return resolutionResponse{
		TenantID:      t.ID.String(),
		Slug:          t.Slug,
		CustomDomain:  t.CustomDomain,
		DisplayName:   t.DisplayName,
		EffectivePlan: t.EffectivePlan.String(),
		PublicData:    t.PublicData,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
