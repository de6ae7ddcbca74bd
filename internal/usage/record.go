// Package usage persists LLM usage records and answers the cost aggregation
// queries used by budgets, analytics and the reporting API.
package usage

import (
	"errors"
	"fmt"
	"time"
)

// DefaultScope is the department and project recorded when none is given.
const DefaultScope = "default"

// ErrInvalidRecord is wrapped by Record.Validate failures.
var ErrInvalidRecord = errors.New("invalid usage record")

// Record is one completed LLM call.
type Record struct {
	ID           int64     `json:"id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Department   string    `json:"department"`
	ProjectID    string    `json:"project_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	LatencyMs    float64   `json:"latency_ms"`
}

// withDefaults fills the optional fields. A zero timestamp becomes now.
func (r Record) withDefaults(now time.Time) Record {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	r.Timestamp = r.Timestamp.UTC()
	if r.Department == "" {
		r.Department = DefaultScope
	}
	if r.ProjectID == "" {
		r.ProjectID = DefaultScope
	}
	return r
}

func (r Record) Validate() error {
	switch {
	case r.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidRecord)
	case r.InputTokens < 0 || r.OutputTokens < 0:
		return fmt.Errorf("%w: token counts must be >= 0", ErrInvalidRecord)
	case r.Cost < 0:
		return fmt.Errorf("%w: cost must be >= 0", ErrInvalidRecord)
	case r.LatencyMs < 0:
		return fmt.Errorf("%w: latency_ms must be >= 0", ErrInvalidRecord)
	}
	return nil
}

// CostSummary aggregates records sharing one department, project or model.
type CostSummary struct {
	Entity            string  `json:"entity"`
	TotalCost         float64 `json:"total_cost"`
	RequestCount      int64   `json:"request_count"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
}

// DailyCost is the spend of one UTC calendar day.
type DailyCost struct {
	Date         string  `json:"date"`
	TotalCost    float64 `json:"total_cost"`
	RequestCount int64   `json:"request_count"`
}

// Range bounds a query by record timestamp, inclusive at both ends. Zero
// times leave that side open.
type Range struct {
	From time.Time
	To   time.Time
}

// Since returns a range open at the upper end.
func Since(from time.Time) Range { return Range{From: from} }

// Dimension names a grouping column for cost summaries.
type Dimension string

const (
	ByDepartment Dimension = "department"
	ByProject    Dimension = "project"
	ByModel      Dimension = "model"
)

func ParseDimension(s string) (Dimension, bool) {
	switch Dimension(s) {
	case ByDepartment, ByProject, ByModel:
		return Dimension(s), true
	default:
		return "", false
	}
}

func (d Dimension) column() string {
	switch d {
	case ByDepartment:
		return "department"
	case ByProject:
		return "project_id"
	case ByModel:
		return "model"
	default:
		return ""
	}
}
