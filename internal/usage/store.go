package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/af-corp/costrouter/internal/catalog"
)

// Store is the usage-record store consumed by budgets, analytics and the API.
type Store interface {
	LogUsage(ctx context.Context, r Record) (int64, error)
	LogUsageBatch(ctx context.Context, records []Record) (int, error)
	Costs(ctx context.Context, dim Dimension, department string, r Range) ([]CostSummary, error)
	CostsByDepartment(ctx context.Context, r Range) ([]CostSummary, error)
	CostsByProject(ctx context.Context, department string, r Range) ([]CostSummary, error)
	CostsByModel(ctx context.Context, r Range) ([]CostSummary, error)
	DailyCosts(ctx context.Context, days int, department string) ([]DailyCost, error)
	TotalCost(ctx context.Context, r Range) (float64, error)
	AvgCostPerRequest(ctx context.Context) (float64, error)
	TopSpendingDepartments(ctx context.Context, limit int) ([]CostSummary, error)
	DepartmentSpend(ctx context.Context, department string, r Range) (float64, error)
	RecordCount(ctx context.Context) (int64, error)
	Close() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

// backend is the driver-specific part of a Tracker.
type backend interface {
	insert(ctx context.Context, records []Record) ([]int64, error)
	query(ctx context.Context, q *query, fn func(rowScanner) error) error
	queryRow(ctx context.Context, q *query, dest ...any) error
	close() error
}

// Tracker implements Store on top of a SQL backend.
type Tracker struct {
	db  backend
	d   dialect
	now func() time.Time
}

var _ Store = (*Tracker)(nil)

// WithClock replaces the time source used for default timestamps and
// DailyCosts windows.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// LogUsage stores one record and returns its id.
func (t *Tracker) LogUsage(ctx context.Context, r Record) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	ids, err := t.db.insert(ctx, []Record{r.withDefaults(t.now())})
	if err != nil {
		return 0, fmt.Errorf("insert usage record: %w", err)
	}
	return ids[0], nil
}

// LogUsageBatch stores records in a single transaction and returns how many
// were written. Nothing is written if any record is invalid.
func (t *Tracker) LogUsageBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := t.now()
	batch := make([]Record, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("records[%d]: %w", i, err)
		}
		batch[i] = r.withDefaults(now)
	}
	ids, err := t.db.insert(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert usage batch: %w", err)
	}
	return len(ids), nil
}

// Costs groups spend by dim, highest total first. A non-empty department
// restricts the records considered.
func (t *Tracker) Costs(ctx context.Context, dim Dimension, department string, r Range) ([]CostSummary, error) {
	if dim.column() == "" {
		return nil, fmt.Errorf("unknown cost dimension %q", dim)
	}

	var out []CostSummary
	err := t.db.query(ctx, summaryQuery(t.d, dim, department, r), func(row rowScanner) error {
		var s CostSummary
		var totalLatency float64
		if err := row.Scan(&s.Entity, &s.TotalCost, &s.RequestCount,
			&s.TotalInputTokens, &s.TotalOutputTokens, &totalLatency); err != nil {
			return err
		}
		if s.RequestCount > 0 {
			s.AvgCostPerRequest = catalog.Round(s.TotalCost/float64(s.RequestCount), 6)
			s.AvgLatencyMs = catalog.Round(totalLatency/float64(s.RequestCount), 2)
		}
		s.TotalCost = catalog.Round(s.TotalCost, 6)
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query costs by %s: %w", dim, err)
	}
	return out, nil
}

func (t *Tracker) CostsByDepartment(ctx context.Context, r Range) ([]CostSummary, error) {
	return t.Costs(ctx, ByDepartment, "", r)
}

func (t *Tracker) CostsByProject(ctx context.Context, department string, r Range) ([]CostSummary, error) {
	return t.Costs(ctx, ByProject, department, r)
}

func (t *Tracker) CostsByModel(ctx context.Context, r Range) ([]CostSummary, error) {
	return t.Costs(ctx, ByModel, "", r)
}

// DailyCosts returns per-day totals for the last days days, oldest first.
func (t *Tracker) DailyCosts(ctx context.Context, days int, department string) ([]DailyCost, error) {
	since := t.now().AddDate(0, 0, -days)

	var out []DailyCost
	err := t.db.query(ctx, dailyQuery(t.d, since, department), func(row rowScanner) error {
		var dc DailyCost
		if err := row.Scan(&dc.Date, &dc.TotalCost, &dc.RequestCount); err != nil {
			return err
		}
		dc.TotalCost = catalog.Round(dc.TotalCost, 6)
		out = append(out, dc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query daily costs: %w", err)
	}
	return out, nil
}

func (t *Tracker) TotalCost(ctx context.Context, r Range) (float64, error) {
	return t.sum(ctx, "", r)
}

// DepartmentSpend is the total cost recorded for one department.
func (t *Tracker) DepartmentSpend(ctx context.Context, department string, r Range) (float64, error) {
	return t.sum(ctx, department, r)
}

func (t *Tracker) sum(ctx context.Context, department string, r Range) (float64, error) {
	var total float64
	if err := t.db.queryRow(ctx, totalQuery(t.d, department, r), &total); err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}
	return catalog.Round(total, 6), nil
}

func (t *Tracker) AvgCostPerRequest(ctx context.Context) (float64, error) {
	var avg float64
	if err := t.db.queryRow(ctx, newQuery(t.d, `SELECT COALESCE(AVG(cost), 0) FROM usage_records`), &avg); err != nil {
		return 0, fmt.Errorf("query average cost: %w", err)
	}
	return catalog.Round(avg, 6), nil
}

// TopSpendingDepartments returns at most limit departments by total cost.
func (t *Tracker) TopSpendingDepartments(ctx context.Context, limit int) ([]CostSummary, error) {
	all, err := t.CostsByDepartment(ctx, Range{})
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (t *Tracker) RecordCount(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.queryRow(ctx, newQuery(t.d, `SELECT COUNT(*) FROM usage_records`), &n); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}
	return n, nil
}

func (t *Tracker) Close() error {
	return t.db.close()
}
