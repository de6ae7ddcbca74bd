package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the cost router.
type Metrics struct {
	RoutingDecisions  *prometheus.CounterVec
	RoutingFailures   *prometheus.CounterVec
	EstimatedCostUSD  prometheus.Histogram
	TokensTotal       *prometheus.CounterVec
	CostUSDTotal      *prometheus.CounterVec
	BudgetAlerts      *prometheus.CounterVec
	ConfigReloads     *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoutingDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_routing_decisions_total",
			Help: "Total routing decisions by complexity, selected tier and model.",
		}, []string{"complexity", "tier", "model", "fallback"}),

		RoutingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_routing_failures_total",
			Help: "Requests for which no model fit the tier chain and cost ceiling.",
		}, []string{"complexity"}),

		EstimatedCostUSD: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "costrouter_estimated_cost_usd",
			Help:    "Estimated cost in USD of routed requests.",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_tokens_total",
			Help: "Total tokens reported in usage records.",
		}, []string{"department", "model", "direction"}),

		CostUSDTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_cost_usd_total",
			Help: "Total cost in USD reported in usage records.",
		}, []string{"department", "project", "model"}),

		BudgetAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_budget_alerts_total",
			Help: "Budget alerts generated.",
		}, []string{"entity", "type"}),

		ConfigReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costrouter_config_reloads_total",
			Help: "Routing configuration reload attempts.",
		}, []string{"result"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "costrouter_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"method", "route", "status"}),
	}
}

// DecisionLabels holds the values recorded for one routing decision.
type DecisionLabels struct {
	Complexity    string
	Tier          string
	Model         string
	Fallback      bool
	EstimatedCost float64
}

func (m *Metrics) RecordDecision(l DecisionLabels) {
	m.RoutingDecisions.WithLabelValues(
		l.Complexity, l.Tier, l.Model, strconv.FormatBool(l.Fallback),
	).Inc()
	m.EstimatedCostUSD.Observe(l.EstimatedCost)
}

func (m *Metrics) RecordRoutingFailure(complexity string) {
	m.RoutingFailures.WithLabelValues(complexity).Inc()
}

// UsageLabels holds the values recorded for one usage record.
type UsageLabels struct {
	Department   string
	Project      string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

func (m *Metrics) RecordUsage(l UsageLabels) {
	if l.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Department, l.Model, "input").Add(float64(l.InputTokens))
	}
	if l.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Department, l.Model, "output").Add(float64(l.OutputTokens))
	}
	if l.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(l.Department, l.Project, l.Model).Add(l.CostUSD)
	}
}

func (m *Metrics) RecordBudgetAlert(entity, alertType string) {
	m.BudgetAlerts.WithLabelValues(entity, alertType).Inc()
}

// RecordReload counts a configuration reload by outcome.
func (m *Metrics) RecordReload(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ConfigReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, durationMs float64) {
	m.RequestDurationMs.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durationMs)
}
