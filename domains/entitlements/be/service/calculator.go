package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// UserEntitlementRecord is the raw, normalized user document. Every field is
// independently settable by upstream flows (signup, trial start, payment
// webhooks), so the stored combination can be momentarily inconsistent; only
// ComputeEffective resolves it.
type UserEntitlementRecord struct {
	UserID   string
	TenantID uuid.UUID

	PlanTier   plan.Tier
	PlanActive bool // true only for a paid, non-trial subscription

	TrialEngaged   bool
	TrialStartedAt *time.Time
	TrialEndsAt    *time.Time
	TrialEverUsed  bool // write-once-true; no code path may reset it

	DiscountApplied bool

	UpdatedAt time.Time
}

// EffectiveEntitlement is the derived subscription state. It is recomputed on
// every evaluation and cached only for presentation; the cache is never the
// system of record.
type EffectiveEntitlement struct {
	Tier             plan.Tier `json:"tier"`
	TrialActive      bool      `json:"trialActive"`
	TrialExpired     bool      `json:"trialExpired"`
	PaidActive       bool      `json:"paidActive"`
	DiscountEligible bool      `json:"discountEligible"`
}

// ComputeEffective derives the effective entitlement from a raw record at the
// given instant. Pure: no I/O, deterministic in (rec, now).
//
// Evaluation-time expiry is authoritative: a trial whose trialEndsAt has
// passed evaluates inactive even while trialEngaged is still true in storage,
// so the result self-heals against lag in the background expiry sweep. Tier
// and trial state are orthogonal; a user can hold a paid tier while trialing
// it, paying for it, or sitting in the post-trial grace period. When both
// planActive and trialEngaged are set, trialActive wins for the paidActive
// computation.
func ComputeEffective(rec UserEntitlementRecord, now time.Time) EffectiveEntitlement {
	trialActive := rec.TrialEngaged && rec.TrialEndsAt != nil && now.Before(*rec.TrialEndsAt)
	trialExpired := rec.TrialEverUsed && rec.TrialEndsAt != nil && !now.Before(*rec.TrialEndsAt)

	tier := rec.PlanTier
	if tier == "" {
		tier = plan.TierFree
	}

	return EffectiveEntitlement{
		Tier:             tier,
		TrialActive:      trialActive,
		TrialExpired:     trialExpired,
		PaidActive:       rec.PlanActive && !trialActive && tier.Paid(),
		DiscountEligible: trialActive && !rec.DiscountApplied,
	}
}

// Inconsistencies lists raw-flag combinations that the precedence rules had
// to resolve. They are observations for logging, never errors.
func Inconsistencies(rec UserEntitlementRecord, now time.Time) []string {
	var notes []string
	trialActive := rec.TrialEngaged && rec.TrialEndsAt != nil && now.Before(*rec.TrialEndsAt)

	if rec.PlanActive && trialActive {
		notes = append(notes, "planActive and trialActive both set; trialActive wins")
	}
	if rec.TrialEngaged && rec.TrialEndsAt == nil {
		notes = append(notes, "trialEngaged set without trialEndsAt")
	}
	if rec.TrialEngaged && rec.TrialEndsAt != nil && !now.Before(*rec.TrialEndsAt) {
		notes = append(notes, "trialEngaged still set past trialEndsAt; expiry sweep lagging")
	}
	if rec.TrialEngaged && !rec.TrialEverUsed {
		notes = append(notes, "trialEngaged set without trialEverUsed")
	}
	return notes
}
