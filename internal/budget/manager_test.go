package budget_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/costrouter/internal/budget"
	"github.com/af-corp/costrouter/internal/usage"
)

// Wednesday.
var testNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// fakeSpend returns fixed spend per department and records the ranges asked.
type fakeSpend struct {
	mu     sync.Mutex
	spend  map[string]float64
	err    error
	ranges []usage.Range
}

func (f *fakeSpend) DepartmentSpend(_ context.Context, dept string, r usage.Range) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, r)
	if f.err != nil {
		return 0, f.err
	}
	return f.spend[dept], nil
}

func (f *fakeSpend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ranges)
}

// storeWithData opens a usage store where engineering spent $45 and
// marketing $5 in the current month.
func storeWithData(t *testing.T) *usage.Tracker {
	t.Helper()
	ctx := context.Background()

	s, err := usage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "costs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.WithClock(clock)

	var records []usage.Record
	for i := range 5 {
		records = append(records, usage.Record{
			Timestamp: testNow.Add(-time.Duration(i) * time.Hour), Model: "gemini-2.0-flash",
			Department: "engineering", ProjectID: "chatbot",
			InputTokens: 1000, OutputTokens: 500, Cost: 9.0, LatencyMs: 200,
		})
	}
	records = append(records,
		usage.Record{Timestamp: testNow, Model: "gpt-4o-mini", Department: "marketing", ProjectID: "content-gen", InputTokens: 300, OutputTokens: 200, Cost: 5.0, LatencyMs: 150},
		// Last month: outside the current period.
		usage.Record{Timestamp: time.Date(2025, 2, 27, 10, 0, 0, 0, time.UTC), Model: "gemini-2.5-pro", Department: "engineering", Cost: 1000},
	)
	_, err = s.LogUsageBatch(ctx, records)
	require.NoError(t, err)
	return s
}

func managerWithBudgets(t *testing.T) *budget.Manager {
	t.Helper()
	m := budget.NewManager(storeWithData(t)).WithClock(clock)
	_, err := m.SetBudget(budget.Budget{EntityID: "engineering", Limit: 50, Period: budget.PeriodMonthly})
	require.NoError(t, err)
	_, err = m.SetBudget(budget.Budget{EntityID: "marketing", Limit: 100})
	require.NoError(t, err)
	return m
}

func TestSetBudget_Defaults(t *testing.T) {
	m := managerWithBudgets(t)

	b, ok := m.Budget("marketing")
	require.True(t, ok)
	assert.Equal(t, budget.PeriodMonthly, b.Period)
	assert.Equal(t, 80.0, b.WarningPct)
	assert.Equal(t, 90.0, b.CriticalPct)
}

func TestSetBudget_CustomValues(t *testing.T) {
	m := budget.NewManager(&fakeSpend{})

	b, err := m.SetBudget(budget.Budget{EntityID: "research", Limit: 500, Period: budget.PeriodWeekly, WarningPct: 70, CriticalPct: 85})
	require.NoError(t, err)
	assert.Equal(t, budget.PeriodWeekly, b.Period)
	assert.Equal(t, 70.0, b.WarningPct)
	assert.Equal(t, 85.0, b.CriticalPct)
}

func TestSetBudget_SingleThresholdKeepsOtherDefault(t *testing.T) {
	m := budget.NewManager(&fakeSpend{}).WithClock(clock)
	ctx := context.Background()

	b, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 100, WarningPct: 70})
	require.NoError(t, err)
	assert.Equal(t, 70.0, b.WarningPct)
	assert.Equal(t, 90.0, b.CriticalPct)

	b, err = m.SetBudget(budget.Budget{EntityID: "ops", Limit: 100, CriticalPct: 95})
	require.NoError(t, err)
	assert.Equal(t, 80.0, b.WarningPct)
	assert.Equal(t, 95.0, b.CriticalPct)

	s, err := m.CheckBudget(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, budget.StateOK, s.State)

	alerts, err := m.GenerateAlerts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSetBudget_Invalid(t *testing.T) {
	m := budget.NewManager(&fakeSpend{})

	tests := []struct {
		name string
		b    budget.Budget
	}{
		{"missing entity", budget.Budget{Limit: 10}},
		{"negative limit", budget.Budget{EntityID: "x", Limit: -1}},
		{"unknown period", budget.Budget{EntityID: "x", Limit: 1, Period: "daily"}},
		{"threshold over 100", budget.Budget{EntityID: "x", Limit: 1, WarningPct: 80, CriticalPct: 120}},
		{"negative threshold", budget.Budget{EntityID: "x", Limit: 1, WarningPct: -5, CriticalPct: 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.SetBudget(tt.b)
			require.ErrorIs(t, err, budget.ErrInvalidBudget)
		})
	}
	assert.Empty(t, m.Budgets())
}

func TestRemoveAndListBudgets(t *testing.T) {
	m := managerWithBudgets(t)

	all := m.Budgets()
	require.Len(t, all, 2)
	assert.Equal(t, "engineering", all[0].EntityID)
	assert.Equal(t, "marketing", all[1].EntityID)

	assert.True(t, m.RemoveBudget("engineering"))
	_, ok := m.Budget("engineering")
	assert.False(t, ok)
	assert.False(t, m.RemoveBudget("nonexistent"))
}

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		name   string
		period budget.Period
		now    time.Time
		want   time.Time
	}{
		{"monthly", budget.PeriodMonthly, testNow, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"weekly midweek", budget.PeriodWeekly, testNow, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"weekly on monday", budget.PeriodWeekly, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"weekly on sunday", budget.PeriodWeekly, time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"weekly across month", budget.PeriodWeekly, time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Start(tt.now))
		})
	}
}

func TestCheckBudget(t *testing.T) {
	m := managerWithBudgets(t)
	ctx := context.Background()

	eng, err := m.CheckBudget(ctx, "engineering")
	require.NoError(t, err)
	assert.Equal(t, 50.0, eng.Limit)
	assert.InDelta(t, 45.0, eng.CurrentSpend, 1e-9)
	assert.InDelta(t, 5.0, eng.Remaining, 1e-9)
	assert.InDelta(t, 90.0, eng.UsagePct, 1e-9)
	assert.Equal(t, budget.StateCritical, eng.State)

	mkt, err := m.CheckBudget(ctx, "marketing")
	require.NoError(t, err)
	assert.Equal(t, budget.StateOK, mkt.State)
	assert.Less(t, mkt.UsagePct, 80.0)

	_, err = m.CheckBudget(ctx, "nonexistent")
	require.ErrorIs(t, err, budget.ErrNoBudget)
}

func TestCheckBudget_States(t *testing.T) {
	tests := []struct {
		spend     float64
		state     budget.State
		remaining float64
	}{
		{0, budget.StateOK, 100},
		{79.99, budget.StateOK, 20.01},
		{80, budget.StateWarning, 20},
		{90, budget.StateCritical, 10},
		{99.99, budget.StateCritical, 0.01},
		{100, budget.StateExceeded, 0},
		{150, budget.StateExceeded, 0},
	}

	for _, tt := range tests {
		src := &fakeSpend{spend: map[string]float64{"eng": tt.spend}}
		m := budget.NewManager(src).WithClock(clock)
		_, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 100})
		require.NoError(t, err)

		s, err := m.CheckBudget(context.Background(), "eng")
		require.NoError(t, err)
		assert.Equal(t, tt.state, s.State, "spend %v", tt.spend)
		assert.InDelta(t, tt.remaining, s.Remaining, 1e-9, "spend %v", tt.spend)
	}
}

func TestCheckBudget_ZeroLimit(t *testing.T) {
	src := &fakeSpend{spend: map[string]float64{"eng": 5}}
	m := budget.NewManager(src).WithClock(clock)
	_, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 0})
	require.NoError(t, err)

	s, err := m.CheckBudget(context.Background(), "eng")
	require.NoError(t, err)
	assert.Zero(t, s.UsagePct)
	assert.Zero(t, s.Remaining)
}

func TestCheckBudget_QueriesCurrentPeriod(t *testing.T) {
	src := &fakeSpend{spend: map[string]float64{}}
	m := budget.NewManager(src).WithClock(clock)
	_, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 10, Period: budget.PeriodWeekly})
	require.NoError(t, err)

	_, err = m.CheckBudget(context.Background(), "eng")
	require.NoError(t, err)
	require.Len(t, src.ranges, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), src.ranges[0].From)
	assert.True(t, src.ranges[0].To.IsZero())
}

func TestCheckBudget_SpendError(t *testing.T) {
	boom := errors.New("db down")
	m := budget.NewManager(&fakeSpend{err: boom}).WithClock(clock)
	_, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 10})
	require.NoError(t, err)

	_, err = m.CheckBudget(context.Background(), "eng")
	require.ErrorIs(t, err, boom)
}

func TestCheckAllBudgets(t *testing.T) {
	m := managerWithBudgets(t)

	all, err := m.CheckAllBudgets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "engineering", all[0].EntityID)
	assert.Equal(t, "marketing", all[1].EntityID)
}

func TestGenerateAlerts(t *testing.T) {
	m := managerWithBudgets(t)
	ctx := context.Background()

	alerts, err := m.GenerateAlerts(ctx, "engineering")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, budget.AlertCritical, alerts[0].Type)
	assert.Equal(t, "engineering", alerts[0].Department)
	assert.Equal(t, 90.0, alerts[0].ThresholdPct)
	assert.Equal(t, testNow, alerts[0].Timestamp)
	assert.Equal(t,
		"CRITICAL: Department 'engineering' has used 90.0% of its $50.00 budget ($45.00 spent)",
		alerts[0].Message)

	alerts, err = m.GenerateAlerts(ctx, "marketing")
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = m.GenerateAlerts(ctx, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "engineering", alerts[0].Department)

	alerts, err = m.GenerateAlerts(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestGenerateAlerts_Warning(t *testing.T) {
	src := &fakeSpend{spend: map[string]float64{"sales": 85}}
	m := budget.NewManager(src).WithClock(clock)
	_, err := m.SetBudget(budget.Budget{EntityID: "sales", Limit: 100})
	require.NoError(t, err)

	alerts, err := m.GenerateAlerts(context.Background(), "sales")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, budget.AlertWarning, alerts[0].Type)
	assert.Equal(t, 80.0, alerts[0].ThresholdPct)
	assert.Equal(t, "WARNING: Department 'sales' has used 85.0% of its $100.00 budget ($85.00 spent)", alerts[0].Message)
}

func TestAlertMessage(t *testing.T) {
	assert.Equal(t,
		"CRITICAL: Department 'x' has used 95.0% of its $50.00 budget ($47.50 spent)",
		budget.AlertMessage(budget.AlertCritical, "x", 50, 47.5))
	assert.Equal(t,
		"WARNING: Department 'x' has used 0.0% of its $0.00 budget ($3.00 spent)",
		budget.AlertMessage(budget.AlertWarning, "x", 0, 3))
}

func TestForecastSpend(t *testing.T) {
	m := managerWithBudgets(t)

	// 45 spent over 11 elapsed days of March.
	f, err := m.ForecastSpend(context.Background(), "engineering", 30)
	require.NoError(t, err)

	assert.Equal(t, "engineering", f.EntityID)
	assert.InDelta(t, 45.0, f.CurrentSpend, 1e-9)
	assert.InDelta(t, 4.090909, f.DailyRate, 1e-9)
	assert.InDelta(t, 167.727273, f.ProjectedSpend, 1e-9)
	assert.InDelta(t, 122.727273, f.ProjectedEndOfPeriod, 1e-9)
	assert.Equal(t, 30, f.DaysAhead)
	require.NotNil(t, f.BudgetLimit)
	assert.Equal(t, 50.0, *f.BudgetLimit)
	require.NotNil(t, f.WillExceed)
	assert.True(t, *f.WillExceed)
	assert.GreaterOrEqual(t, f.ProjectedSpend, f.CurrentSpend)
}

func TestForecastSpend_WithoutBudget(t *testing.T) {
	m := budget.NewManager(storeWithData(t)).WithClock(clock)

	f, err := m.ForecastSpend(context.Background(), "engineering", 7)
	require.NoError(t, err)
	assert.Nil(t, f.BudgetLimit)
	assert.Nil(t, f.WillExceed)
	assert.Equal(t, f.ProjectedSpend, f.ProjectedEndOfPeriod)
}

func TestForecastSpend_FirstDayCountsAsOne(t *testing.T) {
	src := &fakeSpend{spend: map[string]float64{"eng": 10}}
	firstDay := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	m := budget.NewManager(src).WithClock(func() time.Time { return firstDay })
	_, err := m.SetBudget(budget.Budget{EntityID: "eng", Limit: 200})
	require.NoError(t, err)

	f, err := m.ForecastSpend(context.Background(), "eng", 5)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, f.DailyRate, 1e-9)
	assert.InDelta(t, 60.0, f.ProjectedSpend, 1e-9)
	assert.InDelta(t, 300.0, f.ProjectedEndOfPeriod, 1e-9)
	assert.True(t, *f.WillExceed)
}
