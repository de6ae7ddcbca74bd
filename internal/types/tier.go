package types

// Tier is the coarse cost/capability class of a model.
type Tier string

const (
	TierEconomy  Tier = "economy"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Tiers lists every tier from cheapest to most capable.
var Tiers = []Tier{TierEconomy, TierStandard, TierPremium}

// Rank returns the position of the tier in the economy < standard < premium
// ordering, or -1 for an unknown tier.
func (t Tier) Rank() int {
	switch t {
	case TierEconomy:
		return 0
	case TierStandard:
		return 1
	case TierPremium:
		return 2
	default:
		return -1
	}
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierEconomy, TierStandard, TierPremium:
		return Tier(s), true
	default:
		return "", false
	}
}
