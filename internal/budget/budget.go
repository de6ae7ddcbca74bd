// Package budget tracks spending limits per department or project, reports
// threshold status, raises alerts and projects spend to the end of a period.
package budget

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoBudget is returned for entities without a configured budget.
	ErrNoBudget = errors.New("no budget configured")
	// ErrInvalidBudget wraps budget validation failures.
	ErrInvalidBudget = errors.New("invalid budget")
)

const (
	DefaultWarningPct  = 80.0
	DefaultCriticalPct = 90.0
)

// Period is the window a budget limit applies to.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodWeekly, PeriodMonthly:
		return Period(s), true
	default:
		return "", false
	}
}

// Days is the nominal period length used for end-of-period projections.
func (p Period) Days() int {
	if p == PeriodWeekly {
		return 7
	}
	return 30
}

// Start returns the beginning of the period containing now: the first of the
// month or the Monday of the week, at 00:00 in now's location.
func (p Period) Start(now time.Time) time.Time {
	y, m, d := now.Date()
	if p == PeriodWeekly {
		offset := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

// Budget is the spending limit for one entity.
type Budget struct {
	EntityID    string  `json:"entity_id"`
	Limit       float64 `json:"budget_limit"`
	Period      Period  `json:"period"`
	WarningPct  float64 `json:"warning_threshold_pct"`
	CriticalPct float64 `json:"critical_threshold_pct"`
}

func (b Budget) Validate() error {
	switch {
	case b.EntityID == "":
		return fmt.Errorf("%w: entity_id is required", ErrInvalidBudget)
	case b.Limit < 0 || math.IsNaN(b.Limit):
		return fmt.Errorf("%w: budget_limit must be >= 0", ErrInvalidBudget)
	case b.Period != PeriodWeekly && b.Period != PeriodMonthly:
		return fmt.Errorf("%w: unknown period %q", ErrInvalidBudget, b.Period)
	case !validPct(b.WarningPct) || !validPct(b.CriticalPct):
		return fmt.Errorf("%w: thresholds must be within [0, 100]", ErrInvalidBudget)
	}
	return nil
}

func validPct(v float64) bool { return v >= 0 && v <= 100 }

// withDefaults fills an unset period and each unset threshold.
func (b Budget) withDefaults() Budget {
	if b.Period == "" {
		b.Period = PeriodMonthly
	}
	if b.WarningPct == 0 {
		b.WarningPct = DefaultWarningPct
	}
	if b.CriticalPct == 0 {
		b.CriticalPct = DefaultCriticalPct
	}
	return b
}

// State classifies spend against a budget.
type State string

const (
	StateOK       State = "ok"
	StateWarning  State = "warning"
	StateCritical State = "critical"
	StateExceeded State = "exceeded"
)

// Status is a point-in-time check of one budget.
type Status struct {
	EntityID     string  `json:"entity_id"`
	Limit        float64 `json:"budget_limit"`
	CurrentSpend float64 `json:"current_spend"`
	Remaining    float64 `json:"remaining"`
	UsagePct     float64 `json:"usage_pct"`
	Period       Period  `json:"period"`
	State        State   `json:"status"`
}

// AlertType is the severity of a budget alert.
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// Alert reports an entity that crossed a threshold.
type Alert struct {
	Department   string    `json:"department"`
	BudgetLimit  float64   `json:"budget_limit"`
	CurrentSpend float64   `json:"current_spend"`
	ThresholdPct float64   `json:"threshold_pct"`
	Type         AlertType `json:"alert_type"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// AlertMessage renders the default human-readable alert text.
func AlertMessage(t AlertType, department string, limit, spend float64) string {
	var pct float64
	if limit > 0 {
		pct = spend / limit * 100
	}
	label := "WARNING"
	if t == AlertCritical {
		label = "CRITICAL"
	}
	return fmt.Sprintf("%s: Department '%s' has used %.1f%% of its $%.2f budget ($%.2f spent)",
		label, department, pct, limit, spend)
}

// Forecast is a linear projection of an entity's spend.
type Forecast struct {
	EntityID             string   `json:"entity_id"`
	CurrentSpend         float64  `json:"current_spend"`
	DailyRate            float64  `json:"daily_rate"`
	ProjectedSpend       float64  `json:"projected_spend"`
	DaysAhead            int      `json:"days_ahead"`
	ProjectedEndOfPeriod float64  `json:"projected_end_of_period"`
	BudgetLimit          *float64 `json:"budget_limit"`
	WillExceed           *bool    `json:"will_exceed"`
}
