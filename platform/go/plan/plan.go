package plan

import "strings"

// Tier enumerates the subscription tiers a store owner can hold.
type Tier string

const (
	TierFree    Tier = "free"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

// ParseTier converts a stored string to a Tier; unknown or empty values default to free.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPlus:
		return TierPlus
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

// Paid reports whether the tier is a paying tier.
func (t Tier) Paid() bool {
	return t == TierPlus || t == TierPremium
}

func (t Tier) String() string {
	return string(t)
}
