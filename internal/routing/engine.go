// Package routing selects the cheapest model able to serve a request, given
// its complexity, an optional quality floor and an optional cost ceiling.
package routing

import (
	"fmt"
	"math"
	"strings"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/classifier"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/types"
)

const (
	minTokenEstimate = 100
	tokensPerWord    = 2

	// Token volume used to compare models in QualityScore.
	scoreTokens = 500
)

// Request is one routing call. Zero values mean "unset" for Complexity,
// RequiredQuality and MaxCost.
type Request struct {
	Content         string           `json:"content"`
	Complexity      types.Complexity `json:"complexity,omitempty"`
	Department      string           `json:"department,omitempty"`
	ProjectID       string           `json:"project_id,omitempty"`
	MaxCost         *float64         `json:"max_cost,omitempty"`
	RequiredQuality types.Tier       `json:"required_quality,omitempty"`
}

// Validate checks the optional fields. The engine itself never rejects a
// request; callers at the API boundary use this before routing.
func (r Request) Validate() error {
	if r.Complexity != "" && !r.Complexity.Valid() {
		return fmt.Errorf("unknown complexity %q", r.Complexity)
	}
	if r.RequiredQuality != "" && !r.RequiredQuality.Valid() {
		return fmt.Errorf("unknown required_quality %q", r.RequiredQuality)
	}
	if r.MaxCost != nil && (*r.MaxCost < 0 || math.IsNaN(*r.MaxCost)) {
		return fmt.Errorf("max_cost must be >= 0")
	}
	return nil
}

// Decision is the result of routing one request.
type Decision struct {
	Model         catalog.Model    `json:"selected_model"`
	Reason        string           `json:"reason"`
	EstimatedCost float64          `json:"estimated_cost"`
	Tier          types.Tier       `json:"quality_tier"`
	Complexity    types.Complexity `json:"complexity"`
	InputTokens   int              `json:"estimated_input_tokens"`
	OutputTokens  int              `json:"estimated_output_tokens"`
	Fallback      bool             `json:"fallback"`
}

// Engine is an immutable routing snapshot: a catalog, a classifier and the
// tier rules. It is safe for concurrent use.
type Engine struct {
	catalog    *catalog.Catalog
	classifier *classifier.Classifier
	rules      Rules
}

func NewEngine(cat *catalog.Catalog, cls *classifier.Classifier, rules Rules) *Engine {
	return &Engine{catalog: cat, classifier: cls, rules: rules}
}

// FromConfig validates a routing document and builds an engine from it.
func FromConfig(cfg *config.RoutingConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cat, err := catalog.New(cfg.Models)
	if err != nil {
		return nil, err
	}
	rules, err := NewRules(cfg.RoutingRules, cfg.FallbackChain)
	if err != nil {
		return nil, err
	}
	return NewEngine(cat, classifier.New(cfg.ComplexityThresholds), rules), nil
}

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func (e *Engine) Classify(text string) types.Complexity { return e.classifier.Classify(text) }

// EstimateTokens returns the input token estimate for content. The output
// estimate is the same value.
func EstimateTokens(content string) int {
	return max(len(strings.Fields(content))*tokensPerWord, minTokenEstimate)
}

// Route resolves the request to a model. The only error it returns is a
// *NoSuitableModelError.
func (e *Engine) Route(req Request) (Decision, error) {
	complexity := req.Complexity
	if complexity == "" {
		complexity = e.classifier.Classify(req.Content)
	}

	target := req.RequiredQuality
	if target == "" {
		target = e.rules.TargetTier(complexity)
	}

	inputTokens := EstimateTokens(req.Content)
	outputTokens := inputTokens

	var reasons []string
	fallback := false

	model, ok := e.catalog.CheapestInTier(target, req.MaxCost, inputTokens, outputTokens)
	if ok {
		reasons = append(reasons,
			fmt.Sprintf("Complexity '%s' mapped to '%s' tier", complexity, target),
			"Selected cheapest model in tier: "+model.Name,
		)
	} else {
		reasons = append(reasons, fmt.Sprintf("No suitable model in '%s' tier, trying fallbacks", target))
		for _, tier := range e.rules.Fallbacks(target) {
			if model, ok = e.catalog.CheapestInTier(tier, req.MaxCost, inputTokens, outputTokens); ok {
				reasons = append(reasons, fmt.Sprintf("Fell back to '%s' tier: %s", tier, model.Name))
				fallback = true
				break
			}
		}
	}

	if !ok {
		return Decision{}, &NoSuitableModelError{Complexity: complexity, MaxCost: req.MaxCost}
	}

	return Decision{
		Model:         model,
		Reason:        strings.Join(reasons, ". "),
		EstimatedCost: model.EstimateCost(inputTokens, outputTokens),
		Tier:          model.Tier,
		Complexity:    complexity,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		Fallback:      fallback,
	}, nil
}

// Option adjusts a Request built by RouteText.
type Option func(*Request)

func WithMaxCost(v float64) Option {
	return func(r *Request) { r.MaxCost = &v }
}

func WithRequiredQuality(t types.Tier) Option {
	return func(r *Request) { r.RequiredQuality = t }
}

func WithComplexity(c types.Complexity) Option {
	return func(r *Request) { r.Complexity = c }
}

func WithDepartment(d string) Option {
	return func(r *Request) { r.Department = d }
}

func WithProject(p string) Option {
	return func(r *Request) { r.ProjectID = p }
}

// RouteText routes plain text with optional overrides.
func (e *Engine) RouteText(text string, opts ...Option) (Decision, error) {
	req := Request{Content: text}
	for _, opt := range opts {
		opt(&req)
	}
	return e.Route(req)
}

// AvailableModels returns the models of one tier in price order, or every
// model in configuration order when tier is empty.
func (e *Engine) AvailableModels(tier types.Tier) []catalog.Model {
	if tier == "" {
		return e.catalog.All()
	}
	return e.catalog.Models(tier)
}

// QualityScore scores a catalog model against a complexity.
func (e *Engine) QualityScore(m catalog.Model, c types.Complexity) float64 {
	return QualityScore(m, c)
}

// QualityScore rates how well a model fits a complexity, in [0, 1]. It
// penalizes both under- and over-provisioning and rewards cheap models.
func QualityScore(m catalog.Model, c types.Complexity) float64 {
	quality := tierQuality(m.Tier)
	need := complexityNeed(c)

	match := 1.0 - math.Abs(quality-need)/3.0
	efficiency := 1.0 / (1.0 + m.EstimateCost(scoreTokens, scoreTokens)*100)

	return match*0.6 + efficiency*0.4
}

func tierQuality(t types.Tier) float64 {
	switch t {
	case types.TierEconomy:
		return 1
	case types.TierStandard:
		return 2
	case types.TierPremium:
		return 3
	default:
		return 0
	}
}

func complexityNeed(c types.Complexity) float64 {
	switch c {
	case types.ComplexitySimple:
		return 1
	case types.ComplexityModerate:
		return 2
	case types.ComplexityComplex:
		return 3
	default:
		return 0
	}
}
