// Package analytics derives token usage, trend, efficiency, savings and
// utilization reports from the usage store and the model catalog.
package analytics

import (
	"context"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/usage"
)

// Source is the subset of usage.Store the reports read from.
type Source interface {
	CostsByModel(ctx context.Context, r usage.Range) ([]usage.CostSummary, error)
	CostsByDepartment(ctx context.Context, r usage.Range) ([]usage.CostSummary, error)
	DailyCosts(ctx context.Context, days int, department string) ([]usage.DailyCost, error)
	TotalCost(ctx context.Context, r usage.Range) (float64, error)
	AvgCostPerRequest(ctx context.Context) (float64, error)
	RecordCount(ctx context.Context) (int64, error)
}

// CatalogFunc returns the current model catalog. Pricing follows
// configuration reloads.
type CatalogFunc func() *catalog.Catalog

type Analytics struct {
	source  Source
	catalog CatalogFunc
}

func New(source Source, cat CatalogFunc) *Analytics {
	return &Analytics{source: source, catalog: cat}
}

type ModelTokens struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost"`
	RequestCount int64   `json:"request_count"`
}

type DepartmentTokens struct {
	Department        string  `json:"department"`
	InputTokens       int64   `json:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens"`
	TotalTokens       int64   `json:"total_tokens"`
	Cost              float64 `json:"cost"`
	RequestCount      int64   `json:"request_count"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
}

type TrendPoint struct {
	Date           string  `json:"date"`
	DailyCost      float64 `json:"daily_cost"`
	RequestCount   int64   `json:"request_count"`
	CumulativeCost float64 `json:"cumulative_cost"`
}

type Efficiency struct {
	Model              string  `json:"model"`
	CostPerOutputToken float64 `json:"cost_per_output_token"`
	CostPerTotalToken  float64 `json:"cost_per_total_token"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	TotalCost          float64 `json:"total_cost"`
	RequestCount       int64   `json:"request_count"`
}

// Savings compares actual spend with sending every request to one baseline
// model.
type Savings struct {
	ActualCost    float64 `json:"actual_cost"`
	BaselineCost  float64 `json:"baseline_cost"`
	Savings       float64 `json:"savings"`
	SavingsPct    float64 `json:"savings_pct"`
	BaselineModel string  `json:"baseline_model"`
}

type Utilization struct {
	Model        string  `json:"model"`
	RequestCount int64   `json:"request_count"`
	RequestPct   float64 `json:"request_pct"`
	Cost         float64 `json:"cost"`
	CostPct      float64 `json:"cost_pct"`
}

type Summary struct {
	TotalCost         float64 `json:"total_cost"`
	TotalRequests     int64   `json:"total_requests"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
	ModelsUsed        int     `json:"models_used"`
	Departments       int     `json:"departments"`
}

func (a *Analytics) TokenUsageByModel(ctx context.Context, r usage.Range) ([]ModelTokens, error) {
	summaries, err := a.source.CostsByModel(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]ModelTokens, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, ModelTokens{
			Model:        s.Entity,
			InputTokens:  s.TotalInputTokens,
			OutputTokens: s.TotalOutputTokens,
			TotalTokens:  s.TotalInputTokens + s.TotalOutputTokens,
			Cost:         s.TotalCost,
			RequestCount: s.RequestCount,
		})
	}
	return out, nil
}

func (a *Analytics) TokenUsageByDepartment(ctx context.Context, r usage.Range) ([]DepartmentTokens, error) {
	summaries, err := a.source.CostsByDepartment(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]DepartmentTokens, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, DepartmentTokens{
			Department:        s.Entity,
			InputTokens:       s.TotalInputTokens,
			OutputTokens:      s.TotalOutputTokens,
			TotalTokens:       s.TotalInputTokens + s.TotalOutputTokens,
			Cost:              s.TotalCost,
			RequestCount:      s.RequestCount,
			AvgCostPerRequest: s.AvgCostPerRequest,
		})
	}
	return out, nil
}

// CostTrends returns daily spend with a running total, oldest day first.
func (a *Analytics) CostTrends(ctx context.Context, days int, department string) ([]TrendPoint, error) {
	daily, err := a.source.DailyCosts(ctx, days, department)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, 0, len(daily))
	var cumulative float64
	for _, d := range daily {
		cumulative += d.TotalCost
		out = append(out, TrendPoint{
			Date:           d.Date,
			DailyCost:      d.TotalCost,
			RequestCount:   d.RequestCount,
			CumulativeCost: catalog.Round(cumulative, 6),
		})
	}
	return out, nil
}

func (a *Analytics) EfficiencyMetrics(ctx context.Context, r usage.Range) ([]Efficiency, error) {
	summaries, err := a.source.CostsByModel(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]Efficiency, 0, len(summaries))
	for _, s := range summaries {
		var perOutput, perTotal float64
		if s.TotalOutputTokens > 0 {
			perOutput = s.TotalCost / float64(s.TotalOutputTokens)
		}
		if total := s.TotalInputTokens + s.TotalOutputTokens; total > 0 {
			perTotal = s.TotalCost / float64(total)
		}
		out = append(out, Efficiency{
			Model:              s.Entity,
			CostPerOutputToken: catalog.Round(perOutput, 8),
			CostPerTotalToken:  catalog.Round(perTotal, 8),
			AvgLatencyMs:       s.AvgLatencyMs,
			TotalCost:          s.TotalCost,
			RequestCount:       s.RequestCount,
		})
	}
	return out, nil
}

// SavingsVsBaseline prices the recorded token volume on the baseline model.
// An empty or unknown baselineModelID selects the model with the highest
// output price.
func (a *Analytics) SavingsVsBaseline(ctx context.Context, baselineModelID string, r usage.Range) (Savings, error) {
	cat := a.catalog()

	baseline, ok := cat.Lookup(baselineModelID)
	if !ok {
		if baseline, ok = cat.MostExpensive(); !ok {
			return Savings{BaselineModel: "none"}, nil
		}
	}

	actual, err := a.source.TotalCost(ctx, r)
	if err != nil {
		return Savings{}, err
	}
	summaries, err := a.source.CostsByModel(ctx, r)
	if err != nil {
		return Savings{}, err
	}

	var baselineCost float64
	for _, s := range summaries {
		baselineCost += baseline.EstimateCost(int(s.TotalInputTokens), int(s.TotalOutputTokens))
	}

	savings := baselineCost - actual
	var pct float64
	if baselineCost > 0 {
		pct = savings / baselineCost * 100
	}

	return Savings{
		ActualCost:    catalog.Round(actual, 6),
		BaselineCost:  catalog.Round(baselineCost, 6),
		Savings:       catalog.Round(savings, 6),
		SavingsPct:    catalog.Round(pct, 2),
		BaselineModel: baseline.Name,
	}, nil
}

// UtilizationRates reports each model's share of requests and of cost.
func (a *Analytics) UtilizationRates(ctx context.Context, r usage.Range) ([]Utilization, error) {
	summaries, err := a.source.CostsByModel(ctx, r)
	if err != nil {
		return nil, err
	}

	var totalRequests int64
	var totalCost float64
	for _, s := range summaries {
		totalRequests += s.RequestCount
		totalCost += s.TotalCost
	}

	out := make([]Utilization, 0, len(summaries))
	for _, s := range summaries {
		var reqPct, costPct float64
		if totalRequests > 0 {
			reqPct = float64(s.RequestCount) / float64(totalRequests) * 100
		}
		if totalCost > 0 {
			costPct = s.TotalCost / totalCost * 100
		}
		out = append(out, Utilization{
			Model:        s.Entity,
			RequestCount: s.RequestCount,
			RequestPct:   catalog.Round(reqPct, 2),
			Cost:         s.TotalCost,
			CostPct:      catalog.Round(costPct, 2),
		})
	}
	return out, nil
}

func (a *Analytics) SummaryStats(ctx context.Context) (Summary, error) {
	total, err := a.source.TotalCost(ctx, usage.Range{})
	if err != nil {
		return Summary{}, err
	}
	avg, err := a.source.AvgCostPerRequest(ctx)
	if err != nil {
		return Summary{}, err
	}
	models, err := a.source.CostsByModel(ctx, usage.Range{})
	if err != nil {
		return Summary{}, err
	}
	departments, err := a.source.CostsByDepartment(ctx, usage.Range{})
	if err != nil {
		return Summary{}, err
	}
	count, err := a.source.RecordCount(ctx)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		TotalCost:         total,
		TotalRequests:     count,
		AvgCostPerRequest: avg,
		ModelsUsed:        len(models),
		Departments:       len(departments),
	}, nil
}
