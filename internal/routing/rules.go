package routing

import (
	"fmt"
	"sort"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/types"
)

// DefaultTier is used when a complexity has no mapping entry.
const DefaultTier = types.TierStandard

// Rules maps complexities to target tiers and tiers to their ordered
// fallbacks.
type Rules struct {
	tiers     map[types.Complexity]types.Tier
	fallbacks map[types.Tier][]types.Tier
}

// NewRules parses the routing_rules and fallback_chain sections. Unknown
// complexity or tier names are configuration errors.
func NewRules(routingRules map[string]string, fallbackChain map[string][]string) (Rules, error) {
	r := Rules{
		tiers:     make(map[types.Complexity]types.Tier, len(routingRules)),
		fallbacks: make(map[types.Tier][]types.Tier, len(fallbackChain)),
	}

	for _, key := range sortedKeys(routingRules) {
		c, ok := types.ParseComplexity(key)
		if !ok {
			return Rules{}, fmt.Errorf("%w: routing_rules: unknown complexity %q", config.ErrInvalid, key)
		}
		t, ok := types.ParseTier(routingRules[key])
		if !ok {
			return Rules{}, fmt.Errorf("%w: routing_rules[%s]: unknown tier %q", config.ErrInvalid, key, routingRules[key])
		}
		r.tiers[c] = t
	}

	for _, key := range sortedKeys(fallbackChain) {
		from, ok := types.ParseTier(key)
		if !ok {
			return Rules{}, fmt.Errorf("%w: fallback_chain: unknown tier %q", config.ErrInvalid, key)
		}
		chain := make([]types.Tier, 0, len(fallbackChain[key]))
		for i, name := range fallbackChain[key] {
			t, ok := types.ParseTier(name)
			if !ok {
				return Rules{}, fmt.Errorf("%w: fallback_chain[%s][%d]: unknown tier %q", config.ErrInvalid, key, i, name)
			}
			chain = append(chain, t)
		}
		r.fallbacks[from] = chain
	}

	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TargetTier returns the configured tier for c, or DefaultTier.
func (r Rules) TargetTier(c types.Complexity) types.Tier {
	if t, ok := r.tiers[c]; ok {
		return t
	}
	return DefaultTier
}

// Fallbacks returns the ordered fallback tiers for t. The slice is a copy.
func (r Rules) Fallbacks(t types.Tier) []types.Tier {
	return append([]types.Tier(nil), r.fallbacks[t]...)
}
