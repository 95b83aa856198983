package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

func ptr(t time.Time) *time.Time { return &t }

func TestComputeEffectiveIsPure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := UserEntitlementRecord{
		UserID:        "u1",
		PlanTier:      plan.TierPlus,
		PlanActive:    true,
		TrialEngaged:  true,
		TrialEndsAt:   ptr(now.Add(time.Hour)),
		TrialEverUsed: true,
	}

	first := ComputeEffective(rec, now)
	second := ComputeEffective(rec, now)
	require.Equal(t, first, second)
}

func TestTrialBoundaryIsExact(t *testing.T) {
	endsAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := UserEntitlementRecord{
		TrialEngaged:  true,
		TrialEndsAt:   &endsAt,
		TrialEverUsed: true,
	}

	before := ComputeEffective(rec, endsAt.Add(-time.Millisecond))
	require.True(t, before.TrialActive)
	require.False(t, before.TrialExpired)

	at := ComputeEffective(rec, endsAt)
	require.False(t, at.TrialActive, "trial ends exactly at trialEndsAt")
	require.True(t, at.TrialExpired)
}

func TestPrecedenceTrialActiveBeatsPlanActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := UserEntitlementRecord{
		PlanTier:      plan.TierPremium,
		PlanActive:    true,
		TrialEngaged:  true,
		TrialEndsAt:   ptr(now.Add(time.Hour)),
		TrialEverUsed: true,
	}

	eff := ComputeEffective(rec, now)
	require.Equal(t, plan.TierPremium, eff.Tier)
	require.True(t, eff.TrialActive)
	require.False(t, eff.PaidActive, "trialActive wins over planActive")
	require.True(t, eff.DiscountEligible)
}

func TestExpiredTrialSelfHeals(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Expiry sweep has not run yet: trialEngaged is still true in storage.
	rec := UserEntitlementRecord{
		TrialEngaged:  true,
		TrialEndsAt:   ptr(now.Add(-time.Hour)),
		TrialEverUsed: true,
	}

	eff := ComputeEffective(rec, now)
	require.False(t, eff.TrialActive, "evaluation-time expiry beats stale stored flags")
	require.True(t, eff.TrialExpired)
	require.False(t, eff.DiscountEligible)
}

func TestTierDefaultsToFree(t *testing.T) {
	eff := ComputeEffective(UserEntitlementRecord{}, time.Now())
	require.Equal(t, plan.TierFree, eff.Tier)
	require.False(t, eff.TrialActive)
	require.False(t, eff.TrialExpired)
	require.False(t, eff.PaidActive)
	require.False(t, eff.DiscountEligible)
}

func TestPaidActiveRequiresPaidTier(t *testing.T) {
	now := time.Now()

	free := ComputeEffective(UserEntitlementRecord{PlanTier: plan.TierFree, PlanActive: true}, now)
	require.False(t, free.PaidActive, "planActive on a free tier is not paid")

	plus := ComputeEffective(UserEntitlementRecord{PlanTier: plan.TierPlus, PlanActive: true}, now)
	require.True(t, plus.PaidActive)
}

func TestTierOrthogonalToTrialState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rec  UserEntitlementRecord
	}{
		{
			name: "trialing a paid tier",
			rec: UserEntitlementRecord{
				PlanTier: plan.TierPlus, TrialEngaged: true,
				TrialEndsAt: ptr(now.Add(time.Hour)), TrialEverUsed: true,
			},
		},
		{
			name: "paying for it",
			rec:  UserEntitlementRecord{PlanTier: plan.TierPlus, PlanActive: true},
		},
		{
			name: "grace period after trial",
			rec: UserEntitlementRecord{
				PlanTier: plan.TierPlus, TrialEngaged: true,
				TrialEndsAt: ptr(now.Add(-time.Hour)), TrialEverUsed: true,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eff := ComputeEffective(tc.rec, now)
			require.Equal(t, plan.TierPlus, eff.Tier, "tier is never reinterpreted from trial state")
		})
	}
}

func TestDiscountIdempotence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := UserEntitlementRecord{
		TrialEngaged:  true,
		TrialEndsAt:   ptr(now.Add(time.Hour)),
		TrialEverUsed: true,
	}

	require.True(t, ComputeEffective(rec, now).DiscountEligible)

	// Simulated "apply discount" transition upstream.
	rec.DiscountApplied = true
	require.False(t, ComputeEffective(rec, now).DiscountEligible,
		"an applied discount never re-qualifies within the same trial window")
}

func TestPremiumTrialScenario(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := UserEntitlementRecord{
		PlanTier:        plan.TierPremium,
		PlanActive:      true,
		TrialEngaged:    true,
		TrialEndsAt:     ptr(now.Add(time.Hour)),
		TrialEverUsed:   true,
		DiscountApplied: false,
	}

	eff := ComputeEffective(rec, now)
	require.Equal(t, EffectiveEntitlement{
		Tier:             plan.TierPremium,
		TrialActive:      true,
		TrialExpired:     false,
		PaidActive:       false,
		DiscountEligible: true,
	}, eff)
}

func TestInconsistenciesAreObservations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := UserEntitlementRecord{
		PlanTier:      plan.TierPlus,
		PlanActive:    true,
		TrialEngaged:  true,
		TrialEndsAt:   ptr(now.Add(time.Hour)),
		TrialEverUsed: true,
	}
	require.NotEmpty(t, Inconsistencies(rec, now))

	clean := UserEntitlementRecord{PlanTier: plan.TierPlus, PlanActive: true}
	require.Empty(t, Inconsistencies(clean, now))
}
