package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/costrouter/internal/analytics"
	"github.com/af-corp/costrouter/internal/api"
	"github.com/af-corp/costrouter/internal/breaker"
	"github.com/af-corp/costrouter/internal/budget"
	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/httputil"
	"github.com/af-corp/costrouter/internal/policy"
	"github.com/af-corp/costrouter/internal/routing"
	"github.com/af-corp/costrouter/internal/telemetry"
	"github.com/af-corp/costrouter/internal/usage"
)

var testNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

const internsPolicy = `
package costrouter.policy

default allow := true
default reason := ""

allow := false if {
	input.department == "interns"
	input.tier == "premium"
}

reason := "premium tier is not available to this department" if {
	input.department == "interns"
	input.tier == "premium"
}
`

func testRoutingConfig() *config.RoutingConfig {
	return &config.RoutingConfig{
		Models: []config.ModelSpec{
			{Name: "Gemini Flash Lite", Provider: "google", ModelID: "gemini-2.0-flash-lite", CostPer1KInput: 0.0001, CostPer1KOutput: 0.0004, MaxTokens: 8192, QualityTier: "economy"},
			{Name: "GPT-4o Mini", Provider: "openai", ModelID: "gpt-4o-mini", CostPer1KInput: 0.00015, CostPer1KOutput: 0.0006, MaxTokens: 16384, QualityTier: "economy"},
			{Name: "Gemini Flash", Provider: "google", ModelID: "gemini-2.0-flash", CostPer1KInput: 0.001, CostPer1KOutput: 0.004, MaxTokens: 8192, QualityTier: "standard"},
			{Name: "Claude Sonnet", Provider: "anthropic", ModelID: "claude-sonnet-4-20250514", CostPer1KInput: 0.003, CostPer1KOutput: 0.015, MaxTokens: 8192, QualityTier: "standard"},
			{Name: "Gemini Pro", Provider: "google", ModelID: "gemini-2.5-pro", CostPer1KInput: 0.0125, CostPer1KOutput: 0.05, MaxTokens: 8192, QualityTier: "premium"},
		},
		RoutingRules: map[string]string{"simple": "economy", "moderate": "standard", "complex": "premium"},
		FallbackChain: map[string][]string{
			"premium":  {"standard", "economy"},
			"standard": {"economy"},
			"economy":  {},
		},
		ComplexityThresholds: config.ComplexityThresholds{
			ShortTextMax:    100,
			MediumTextMax:   500,
			ComplexKeywords: []string{"analyze", "compare", "architecture"},
			SimpleKeywords:  []string{"hello", "thanks"},
		},
	}
}

type testServer struct {
	srv     *httptest.Server
	metrics *telemetry.Metrics
	budgets *budget.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := usage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "costs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.WithClock(func() time.Time { return testNow })

	day := 24 * time.Hour
	_, err = store.LogUsageBatch(ctx, []usage.Record{
		{Timestamp: testNow.Add(-day), Model: "gemini-2.0-flash-lite", Department: "engineering", ProjectID: "chatbot", InputTokens: 500, OutputTokens: 300, Cost: 0.00017, LatencyMs: 150},
		{Timestamp: testNow.Add(-day), Model: "gemini-2.0-flash", Department: "engineering", ProjectID: "code-review", InputTokens: 1000, OutputTokens: 800, Cost: 0.0042, LatencyMs: 350},
		{Timestamp: testNow.Add(-2 * day), Model: "gemini-2.5-pro", Department: "research", ProjectID: "data-analysis", InputTokens: 2000, OutputTokens: 1500, Cost: 0.1, LatencyMs: 1200},
		{Timestamp: testNow, Model: "gpt-4o-mini", Department: "marketing", ProjectID: "content-gen", InputTokens: 300, OutputTokens: 500, Cost: 0.000345, LatencyMs: 200},
		{Timestamp: testNow, Model: "gemini-2.0-flash-lite", Department: "engineering", ProjectID: "chatbot", InputTokens: 200, OutputTokens: 100, Cost: 0.00006, LatencyMs: 100},
	})
	require.NoError(t, err)

	engine, err := routing.FromConfig(testRoutingConfig())
	require.NoError(t, err)
	router := routing.NewRouter(engine)

	evaluator := policy.NewEvaluator(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, EvaluationTimeout: time.Second}
	})
	require.NoError(t, evaluator.LoadFromModules(ctx, map[string]string{"routing.rego": internsPolicy}))

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetricsWith(reg)
	budgets := budget.NewManager(store).WithClock(func() time.Time { return testNow })

	h := api.NewHandler(api.Deps{
		Router:    router,
		Usage:     store,
		Budgets:   budgets,
		Analytics: analytics.New(store, func() *catalog.Catalog { return router.Engine().Catalog() }),
		Policy:    evaluator,
		Metrics:   metrics,
		Version:   "test",
	})
	cfg := config.DefaultConfig().Server
	srv := httptest.NewServer(h.Routes(cfg, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, metrics: metrics, budgets: budgets}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[httputil.APIError](t, resp).Error.Code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestRoute_SimpleRequest(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/route", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("X-Request-ID"), "req_"))

	d := decode[routing.Decision](t, resp)
	assert.Equal(t, "gemini-2.0-flash-lite", d.Model.ModelID)
	assert.EqualValues(t, "economy", d.Tier)
	assert.EqualValues(t, "simple", d.Complexity)
	assert.InDelta(t, 0.00005, d.EstimatedCost, 1e-9)

	decisions := testutil.ToFloat64(ts.metrics.RoutingDecisions.WithLabelValues("simple", "economy", "gemini-2.0-flash-lite", "false"))
	assert.Equal(t, 1.0, decisions)
}

func TestRoute_PropagatesRequestID(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/route", strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req_client")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req_client", resp.Header.Get("X-Request-ID"))
}

func TestRoute_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"content":`},
		{"unknown complexity", `{"content":"x","complexity":"extreme"}`},
		{"unknown quality", `{"content":"x","required_quality":"luxury"}`},
		{"negative max cost", `{"content":"x","max_cost":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/v1/route", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request", errorCode(t, resp))
		})
	}
}

func TestRoute_NoSuitableModel(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/route", `{"content":"hello","max_cost":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	apiErr := decode[httputil.APIError](t, resp)
	assert.Equal(t, "no_suitable_model", apiErr.Error.Code)
	assert.Equal(t, "no suitable model found for complexity='simple', max_cost=0", apiErr.Error.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RoutingFailures.WithLabelValues("simple")))
}

func TestRoute_PolicyDenied(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/route", `{"content":"hello","department":"interns","required_quality":"premium"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "policy_denied", errorCode(t, resp))

	resp = ts.do(t, http.MethodPost, "/v1/route", `{"content":"hello","department":"research","required_quality":"premium"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gemini-2.5-pro", decode[routing.Decision](t, resp).Model.ModelID)
}

type modelList struct {
	Object string `json:"object"`
	Data   []struct {
		ModelID      string   `json:"model_id"`
		Tier         string   `json:"quality_tier"`
		QualityScore *float64 `json:"quality_score"`
	} `json:"data"`
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[modelList](t, resp)
	assert.Equal(t, "list", all.Object)
	assert.Len(t, all.Data, 5)
	assert.Nil(t, all.Data[0].QualityScore)

	resp = ts.do(t, http.MethodGet, "/v1/models?tier=economy&complexity=simple", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	economy := decode[modelList](t, resp)
	require.Len(t, economy.Data, 2)
	for _, m := range economy.Data {
		assert.Equal(t, "economy", m.Tier)
		require.NotNil(t, m.QualityScore)
		assert.Greater(t, *m.QualityScore, 0.0)
	}

	resp = ts.do(t, http.MethodGet, "/v1/models?tier=luxury", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogUsage(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/usage",
		`{"timestamp":"2025-03-12T10:00:00Z","model":"gpt-4o-mini","department":"support","input_tokens":120,"output_tokens":80,"cost":0.000066,"latency_ms":90}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	single := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, single["count"])
	assert.Len(t, single["ids"], 1)

	resp = ts.do(t, http.MethodPost, "/v1/usage", `{"records":[
		{"model":"gemini-2.0-flash","department":"support","input_tokens":10,"output_tokens":10,"cost":0.00005},
		{"model":"gemini-2.0-flash","department":"support","input_tokens":20,"output_tokens":20,"cost":0.0001}
	]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 2, decode[map[string]any](t, resp)["count"])

	assert.Equal(t, 120.0, testutil.ToFloat64(ts.metrics.TokensTotal.WithLabelValues("support", "gpt-4o-mini", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(ts.metrics.TokensTotal.WithLabelValues("support", "gemini-2.0-flash", "output")))

	resp = ts.do(t, http.MethodGet, "/v1/costs/department?from=2025-03-12&to=2025-03-12", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decode[[]usage.CostSummary](t, resp)
	var support *usage.CostSummary
	for i := range summaries {
		if summaries[i].Entity == "support" {
			support = &summaries[i]
		}
	}
	require.NotNil(t, support)
	assert.EqualValues(t, 3, support.RequestCount)
}

func TestLogUsage_Rejected(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"model":`},
		{"not an object", `[1,2]`},
		{"missing model", `{"cost":0.1}`},
		{"empty batch", `{"records":[]}`},
		{"invalid record in batch", `{"records":[{"model":"m","cost":0.1},{"model":"m","cost":-1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/v1/usage", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	resp := ts.do(t, http.MethodGet, "/v1/analytics/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, decode[analytics.Summary](t, resp).TotalRequests)
}

func TestCosts(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/costs/department", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byDept := decode[[]usage.CostSummary](t, resp)
	require.Len(t, byDept, 3)
	assert.Equal(t, "research", byDept[0].Entity)
	assert.Equal(t, "engineering", byDept[1].Entity)
	assert.InDelta(t, 0.00443, byDept[1].TotalCost, 1e-9)

	resp = ts.do(t, http.MethodGet, "/v1/costs/project?department=engineering", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]usage.CostSummary](t, resp), 2)

	resp = ts.do(t, http.MethodGet, "/v1/costs/daily?days=7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	daily := decode[[]usage.DailyCost](t, resp)
	require.Len(t, daily, 3)
	assert.Equal(t, "2025-03-10", daily[0].Date)

	resp = ts.do(t, http.MethodGet, "/v1/costs/region", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/costs/model?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/costs/daily?days=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBudgets(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPut, "/v1/budgets/engineering", `{"budget_limit":0.005}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b := decode[budget.Budget](t, resp)
	assert.Equal(t, budget.PeriodMonthly, b.Period)
	assert.Equal(t, 80.0, b.WarningPct)
	assert.Equal(t, 90.0, b.CriticalPct)

	resp = ts.do(t, http.MethodGet, "/v1/budgets/engineering", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/budgets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]budget.Budget](t, resp), 1)

	resp = ts.do(t, http.MethodGet, "/v1/budgets/engineering/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[budget.Status](t, resp)
	assert.InDelta(t, 0.00443, status.CurrentSpend, 1e-9)
	assert.Equal(t, 88.6, status.UsagePct)
	assert.Equal(t, budget.StateWarning, status.State)

	resp = ts.do(t, http.MethodGet, "/v1/budgets/engineering/forecast?days=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	forecast := decode[budget.Forecast](t, resp)
	assert.Equal(t, 10, forecast.DaysAhead)
	require.NotNil(t, forecast.BudgetLimit)

	resp = ts.do(t, http.MethodGet, "/v1/alerts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alerts := decode[[]budget.Alert](t, resp)
	require.Len(t, alerts, 1)
	assert.Equal(t, budget.AlertWarning, alerts[0].Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.BudgetAlerts.WithLabelValues("engineering", "warning")))

	resp = ts.do(t, http.MethodDelete, "/v1/budgets/engineering", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, "/v1/budgets/engineering", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBudgets_PartialThresholds(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPut, "/v1/budgets/sales", `{"budget_limit":100,"warning_threshold_pct":70}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b := decode[budget.Budget](t, resp)
	assert.Equal(t, 70.0, b.WarningPct)
	assert.Equal(t, 90.0, b.CriticalPct)

	resp = ts.do(t, http.MethodGet, "/v1/budgets/sales/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, budget.StateOK, decode[budget.Status](t, resp).State)

	resp = ts.do(t, http.MethodGet, "/v1/alerts?entity=sales", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]budget.Alert](t, resp))

	resp = ts.do(t, http.MethodPut, "/v1/budgets/sales", `{"budget_limit":100,"critical_threshold_pct":95}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b = decode[budget.Budget](t, resp)
	assert.Equal(t, 80.0, b.WarningPct)
	assert.Equal(t, 95.0, b.CriticalPct)
}

func TestBudgets_Errors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/budgets/nobody/status", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))

	resp = ts.do(t, http.MethodGet, "/v1/budgets/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/v1/budgets/engineering", `{"budget_limit":-5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/v1/budgets/engineering", `{"budget_limit":5,"period":"yearly"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/alerts?entity=nobody", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]budget.Alert](t, resp))
}

func TestAnalytics(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/analytics/savings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	savings := decode[analytics.Savings](t, resp)
	assert.Equal(t, "Gemini Pro", savings.BaselineModel)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/utilization", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	util := decode[[]analytics.Utilization](t, resp)
	var total float64
	for _, u := range util {
		total += u.RequestPct
	}
	assert.InDelta(t, 100, total, 0.1)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/trends?days=7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]analytics.TrendPoint](t, resp), 3)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/tokens?by=department", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]analytics.DepartmentTokens](t, resp), 3)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/efficiency", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]analytics.Efficiency](t, resp), 4)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/tokens?by=team", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/analytics/forecast", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/v1/route", `{"content":"hello"}`)

	resp := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, testutil.CollectAndCount(ts.metrics.RoutingDecisions))
	assert.Positive(t, testutil.CollectAndCount(ts.metrics.RequestDurationMs))
}

func TestHealth_ReportsSpendCacheAndMissingEngine(t *testing.T) {
	b := breaker.New(1, time.Minute)
	b.RecordFailure()

	h := api.NewHandler(api.Deps{Router: routing.NewRouter(nil), SpendCache: b})
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "open", body["spend_cache"])
	assert.Equal(t, "dev", body["version"])
}
