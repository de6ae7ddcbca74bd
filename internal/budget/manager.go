package budget

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/usage"
)

// SpendSource reports how much a department spent within a time range.
// usage.Store satisfies it.
type SpendSource interface {
	DepartmentSpend(ctx context.Context, department string, r usage.Range) (float64, error)
}

// Manager holds budgets in memory and evaluates them against a SpendSource.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	budgets map[string]Budget

	spend SpendSource
	now   func() time.Time
}

func NewManager(spend SpendSource) *Manager {
	return &Manager{
		budgets: make(map[string]Budget),
		spend:   spend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// SetBudget creates or replaces the budget for b.EntityID. An empty period
// means monthly; zero thresholds mean 80% warning and 90% critical.
func (m *Manager) SetBudget(b Budget) (Budget, error) {
	b = b.withDefaults()
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[b.EntityID] = b
	return b, nil
}

// RemoveBudget reports whether a budget existed.
func (m *Manager) RemoveBudget(entityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.budgets[entityID]; !ok {
		return false
	}
	delete(m.budgets, entityID)
	return true
}

func (m *Manager) Budget(entityID string) (Budget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[entityID]
	return b, ok
}

// Budgets returns every budget ordered by entity id.
func (m *Manager) Budgets() []Budget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Budget, 0, len(m.budgets))
	for _, id := range slices.Sorted(maps.Keys(m.budgets)) {
		out = append(out, m.budgets[id])
	}
	return out
}

// PeriodStart returns the start of the current period.
func (m *Manager) PeriodStart(p Period) time.Time {
	return p.Start(m.now())
}

func (m *Manager) periodSpend(ctx context.Context, entityID string, p Period) (float64, error) {
	spend, err := m.spend.DepartmentSpend(ctx, entityID, usage.Since(m.PeriodStart(p)))
	if err != nil {
		return 0, fmt.Errorf("lookup spend for %q: %w", entityID, err)
	}
	return spend, nil
}

func usagePct(spend, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spend / limit * 100
}

// CheckBudget compares the entity's spend in the current period with its
// limit.
func (m *Manager) CheckBudget(ctx context.Context, entityID string) (Status, error) {
	b, ok := m.Budget(entityID)
	if !ok {
		return Status{}, fmt.Errorf("%w for %q", ErrNoBudget, entityID)
	}

	spend, err := m.periodSpend(ctx, entityID, b.Period)
	if err != nil {
		return Status{}, err
	}
	pct := usagePct(spend, b.Limit)

	state := StateOK
	switch {
	case pct >= 100:
		state = StateExceeded
	case pct >= b.CriticalPct:
		state = StateCritical
	case pct >= b.WarningPct:
		state = StateWarning
	}

	return Status{
		EntityID:     entityID,
		Limit:        b.Limit,
		CurrentSpend: catalog.Round(spend, 6),
		Remaining:    catalog.Round(max(0, b.Limit-spend), 6),
		UsagePct:     catalog.Round(pct, 2),
		Period:       b.Period,
		State:        state,
	}, nil
}

// CheckAllBudgets checks every budget in entity order.
func (m *Manager) CheckAllBudgets(ctx context.Context) ([]Status, error) {
	budgets := m.Budgets()
	out := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		s, err := m.CheckBudget(ctx, b.EntityID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// GenerateAlerts returns one alert per entity at or above a threshold; the
// critical threshold takes precedence. An empty entityID checks every budget.
// Unknown entities produce no alerts.
func (m *Manager) GenerateAlerts(ctx context.Context, entityID string) ([]Alert, error) {
	var budgets []Budget
	if entityID != "" {
		if b, ok := m.Budget(entityID); ok {
			budgets = append(budgets, b)
		}
	} else {
		budgets = m.Budgets()
	}

	now := m.now()
	var alerts []Alert
	for _, b := range budgets {
		spend, err := m.periodSpend(ctx, b.EntityID, b.Period)
		if err != nil {
			return nil, err
		}
		pct := usagePct(spend, b.Limit)

		var (
			t         AlertType
			threshold float64
		)
		switch {
		case pct >= b.CriticalPct:
			t, threshold = AlertCritical, b.CriticalPct
		case pct >= b.WarningPct:
			t, threshold = AlertWarning, b.WarningPct
		default:
			continue
		}

		spend = catalog.Round(spend, 6)
		alerts = append(alerts, Alert{
			Department:   b.EntityID,
			BudgetLimit:  b.Limit,
			CurrentSpend: spend,
			ThresholdPct: threshold,
			Type:         t,
			Message:      AlertMessage(t, b.EntityID, b.Limit, spend),
			Timestamp:    now,
		})
	}
	return alerts, nil
}

// ForecastSpend projects spend linearly from the average daily rate so far
// in the current period. Entities without a budget are projected over a
// monthly period with no limit.
func (m *Manager) ForecastSpend(ctx context.Context, entityID string, daysAhead int) (Forecast, error) {
	b, hasBudget := m.Budget(entityID)
	period := PeriodMonthly
	if hasBudget {
		period = b.Period
	}

	now := m.now()
	start := period.Start(now)
	daysElapsed := max(int(now.Sub(start)/(24*time.Hour)), 1)

	spend, err := m.periodSpend(ctx, entityID, period)
	if err != nil {
		return Forecast{}, err
	}

	rate := spend / float64(daysElapsed)
	projected := spend + rate*float64(daysAhead)

	f := Forecast{
		EntityID:             entityID,
		CurrentSpend:         catalog.Round(spend, 6),
		DailyRate:            catalog.Round(rate, 6),
		ProjectedSpend:       catalog.Round(projected, 6),
		DaysAhead:            daysAhead,
		ProjectedEndOfPeriod: catalog.Round(projected, 6),
	}

	if hasBudget {
		remainingDays := max(period.Days()-daysElapsed, 0)
		endOfPeriod := spend + rate*float64(remainingDays)
		willExceed := endOfPeriod > b.Limit
		limit := b.Limit

		f.ProjectedEndOfPeriod = catalog.Round(endOfPeriod, 6)
		f.BudgetLimit = &limit
		f.WillExceed = &willExceed
	}
	return f, nil
}
