package config

// RoutingConfig is the document enumerating priced models and the rules the
// router applies to them. It is read from routing.yaml.
type RoutingConfig struct {
	Models               []ModelSpec          `yaml:"models"`
	RoutingRules         map[string]string    `yaml:"routing_rules"`
	FallbackChain        map[string][]string  `yaml:"fallback_chain"`
	ComplexityThresholds ComplexityThresholds `yaml:"complexity_thresholds"`
}

type ModelSpec struct {
	Name            string  `yaml:"name"`
	Provider        string  `yaml:"provider"`
	ModelID         string  `yaml:"model_id"`
	CostPer1KInput  float64 `yaml:"cost_per_1k_input"`
	CostPer1KOutput float64 `yaml:"cost_per_1k_output"`
	MaxTokens       int     `yaml:"max_tokens"`
	QualityTier     string  `yaml:"quality_tier"`
}

// ComplexityThresholds tunes the text classifier. Zero lengths fall back to
// the classifier defaults.
type ComplexityThresholds struct {
	ShortTextMax    int      `yaml:"short_text_max"`
	MediumTextMax   int      `yaml:"medium_text_max"`
	ComplexKeywords []string `yaml:"complex_keywords"`
	SimpleKeywords  []string `yaml:"simple_keywords"`
}
