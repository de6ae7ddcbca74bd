// Package catalog holds the immutable set of priced models the router
// chooses from.
package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/types"
)

const tokensPerK = 1000.0

// Model describes one priced endpoint. Values are copied out of the catalog,
// so callers cannot mutate the catalog through them.
type Model struct {
	Name            string     `json:"name"`
	Provider        string     `json:"provider"`
	ModelID         string     `json:"model_id"`
	CostPer1KInput  float64    `json:"cost_per_1k_input"`
	CostPer1KOutput float64    `json:"cost_per_1k_output"`
	MaxTokens       int        `json:"max_tokens"`
	Tier            types.Tier `json:"quality_tier"`
}

// EstimateCost returns the USD cost of a call, rounded to 6 decimal places.
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	input := float64(inputTokens) / tokensPerK * m.CostPer1KInput
	output := float64(outputTokens) / tokensPerK * m.CostPer1KOutput
	return Round(input+output, 6)
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Catalog is an immutable, tier-indexed model list. It is safe for
// concurrent use.
type Catalog struct {
	models []Model
	byTier map[types.Tier][]Model
	byID   map[string]Model
}

// New validates the model definitions and builds the tier index. Each tier's
// models are ordered by ascending input price; ties keep configuration order.
func New(specs []config.ModelSpec) (*Catalog, error) {
	c := &Catalog{
		models: make([]Model, 0, len(specs)),
		byTier: make(map[types.Tier][]Model),
		byID:   make(map[string]Model, len(specs)),
	}

	for i, s := range specs {
		m, err := fromSpec(s)
		if err != nil {
			return nil, fmt.Errorf("%w: models[%d] %q: %v", config.ErrInvalid, i, s.Name, err)
		}
		if _, dup := c.byID[m.ModelID]; dup {
			return nil, fmt.Errorf("%w: models[%d]: duplicate model_id %q", config.ErrInvalid, i, m.ModelID)
		}
		c.models = append(c.models, m)
		c.byID[m.ModelID] = m
		c.byTier[m.Tier] = append(c.byTier[m.Tier], m)
	}

	for _, models := range c.byTier {
		sort.SliceStable(models, func(i, j int) bool {
			return models[i].CostPer1KInput < models[j].CostPer1KInput
		})
	}
	return c, nil
}

func fromSpec(s config.ModelSpec) (Model, error) {
	tier, ok := types.ParseTier(s.QualityTier)
	if !ok {
		return Model{}, fmt.Errorf("unknown quality_tier %q", s.QualityTier)
	}
	switch {
	case s.ModelID == "":
		return Model{}, fmt.Errorf("model_id is required")
	case s.CostPer1KInput < 0:
		return Model{}, fmt.Errorf("cost_per_1k_input must be >= 0, got %v", s.CostPer1KInput)
	case s.CostPer1KOutput < 0:
		return Model{}, fmt.Errorf("cost_per_1k_output must be >= 0, got %v", s.CostPer1KOutput)
	case s.MaxTokens <= 0:
		return Model{}, fmt.Errorf("max_tokens must be > 0, got %d", s.MaxTokens)
	}
	return Model{
		Name:            s.Name,
		Provider:        s.Provider,
		ModelID:         s.ModelID,
		CostPer1KInput:  s.CostPer1KInput,
		CostPer1KOutput: s.CostPer1KOutput,
		MaxTokens:       s.MaxTokens,
		Tier:            tier,
	}, nil
}

// CheapestInTier returns the first model in price order whose estimated cost
// fits maxCost. A nil maxCost accepts any model. The boolean is false when the
// tier is empty or every model is over budget.
func (c *Catalog) CheapestInTier(tier types.Tier, maxCost *float64, inputTokens, outputTokens int) (Model, bool) {
	for _, m := range c.byTier[tier] {
		if maxCost != nil && m.EstimateCost(inputTokens, outputTokens) > *maxCost {
			continue
		}
		return m, true
	}
	return Model{}, false
}

// Models returns the tier's models in price order.
func (c *Catalog) Models(tier types.Tier) []Model {
	return append([]Model(nil), c.byTier[tier]...)
}

// All returns every model in configuration order.
func (c *Catalog) All() []Model {
	return append([]Model(nil), c.models...)
}

func (c *Catalog) Lookup(modelID string) (Model, bool) {
	m, ok := c.byID[modelID]
	return m, ok
}

// MostExpensive returns the model with the highest output price. The first
// configured model wins ties.
func (c *Catalog) MostExpensive() (Model, bool) {
	if len(c.models) == 0 {
		return Model{}, false
	}
	best := c.models[0]
	for _, m := range c.models[1:] {
		if m.CostPer1KOutput > best.CostPer1KOutput {
			best = m
		}
	}
	return best, true
}

func (c *Catalog) Len() int { return len(c.models) }
