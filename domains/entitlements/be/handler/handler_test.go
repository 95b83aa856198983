package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/repo"
	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/auth"
	"github.com/bazaarhq/storefront-saas/platform/go/cache"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
	"github.com/bazaarhq/storefront-saas/platform/go/tenant"
)

func newTestRouter(t *testing.T, userRepo service.Repository) chi.Router {
	t.Helper()
	svc := service.New(userRepo, nil, cache.New[service.EffectiveEntitlement](), service.Config{}, zap.NewNop())
	r := chi.NewRouter()
	New(svc, zap.NewNop()).Routes(r)
	return r
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	ctx := auth.WithUser(req.Context(), &auth.UserCredentials{ID: userID})
	return req.WithContext(ctx)
}

func TestGetEntitlement(t *testing.T) {
	now := time.Now()
	userRepo := repo.NewMemoryRepository()
	endsAt := now.Add(time.Hour)
	userRepo.Put(service.UserEntitlementRecord{
		UserID:        "u1",
		PlanTier:      plan.TierPremium,
		TrialEngaged:  true,
		TrialEndsAt:   &endsAt,
		TrialEverUsed: true,
	})
	router := newTestRouter(t, userRepo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("u1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var body service.EffectiveEntitlement
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, plan.TierPremium, body.Tier)
	require.True(t, body.TrialActive)
	require.True(t, body.DiscountEligible)
	require.False(t, body.PaidActive)
}

func TestGetEntitlementWithResolvedTenant(t *testing.T) {
	userRepo := repo.NewMemoryRepository()
	userRepo.Put(service.UserEntitlementRecord{UserID: "u1", PlanTier: plan.TierPlus, PlanActive: true})
	router := newTestRouter(t, userRepo)

	// Storefront calls arrive through the resolution middleware, which stamps
	// the store on the context before the handler runs.
	req := authedRequest("u1")
	req = req.WithContext(tenant.WithResolved(req.Context(), tenant.Resolved{
		TenantID:      uuid.New(),
		Slug:          "acme",
		Mode:          tenant.ModeCustomDomain,
		EffectivePlan: plan.TierPlus,
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body service.EffectiveEntitlement
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.PaidActive)
}

func TestGetEntitlementUnauthenticated(t *testing.T) {
	router := newTestRouter(t, repo.NewMemoryRepository())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEntitlementUnknownUser(t *testing.T) {
	router := newTestRouter(t, repo.NewMemoryRepository())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("ghost"))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "NOT_FOUND", body.Error)
}
