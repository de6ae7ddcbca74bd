package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/costrouter/internal/budget"
	"github.com/af-corp/costrouter/internal/httputil"
)

const defaultForecastDays = 30

// budgetRequest leaves omitted thresholds nil so they take the defaults.
type budgetRequest struct {
	Limit       float64       `json:"budget_limit"`
	Period      budget.Period `json:"period"`
	WarningPct  *float64      `json:"warning_threshold_pct"`
	CriticalPct *float64      `json:"critical_threshold_pct"`
}

func (r budgetRequest) toBudget(entity string) budget.Budget {
	b := budget.Budget{
		EntityID:    entity,
		Limit:       r.Limit,
		Period:      r.Period,
		WarningPct:  budget.DefaultWarningPct,
		CriticalPct: budget.DefaultCriticalPct,
	}
	if r.WarningPct != nil {
		b.WarningPct = *r.WarningPct
	}
	if r.CriticalPct != nil {
		b.CriticalPct = *r.CriticalPct
	}
	return b
}

// ListBudgets handles GET /v1/budgets
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, requestID(w), http.StatusOK, h.Budgets.Budgets())
}

// SetBudget handles PUT /v1/budgets/{entity}
func (h *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	b, err := h.Budgets.SetBudget(req.toBudget(chi.URLParam(r, "entity")))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	slog.Info("budget set",
		"request_id", reqID,
		"entity", b.EntityID,
		"budget_limit", b.Limit,
		"period", string(b.Period),
	)
	httputil.WriteJSON(w, reqID, http.StatusOK, b)
}

// GetBudget handles GET /v1/budgets/{entity}
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	entity := chi.URLParam(r, "entity")

	b, ok := h.Budgets.Budget(entity)
	if !ok {
		httputil.WriteNotFoundError(w, reqID, "no budget configured for "+entity)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, b)
}

// DeleteBudget handles DELETE /v1/budgets/{entity}
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	entity := chi.URLParam(r, "entity")

	if !h.Budgets.RemoveBudget(entity) {
		httputil.WriteNotFoundError(w, reqID, "no budget configured for "+entity)
		return
	}
	slog.Info("budget removed", "request_id", reqID, "entity", entity)
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusNoContent)
}

// BudgetStatus handles GET /v1/budgets/{entity}/status
func (h *Handler) BudgetStatus(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	entity := chi.URLParam(r, "entity")

	status, err := h.Budgets.CheckBudget(r.Context(), entity)
	if err != nil {
		h.writeBudgetError(w, reqID, entity, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, status)
}

// BudgetForecast handles GET /v1/budgets/{entity}/forecast
func (h *Handler) BudgetForecast(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	entity := chi.URLParam(r, "entity")

	days, err := parsePositiveInt(r.URL.Query(), "days", defaultForecastDays)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	forecast, err := h.Budgets.ForecastSpend(r.Context(), entity, days)
	if err != nil {
		h.writeBudgetError(w, reqID, entity, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, forecast)
}

// Alerts handles GET /v1/alerts. Every alert returned is counted in the
// budget alert metric.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	alerts, err := h.Budgets.GenerateAlerts(r.Context(), r.URL.Query().Get("entity"))
	if err != nil {
		h.writeBudgetError(w, reqID, "", err)
		return
	}
	for _, a := range alerts {
		if h.Metrics != nil {
			h.Metrics.RecordBudgetAlert(a.Department, string(a.Type))
		}
		slog.Warn("budget alert",
			"request_id", reqID,
			"entity", a.Department,
			"alert_type", string(a.Type),
			"current_spend", a.CurrentSpend,
			"budget_limit", a.BudgetLimit,
		)
	}
	if alerts == nil {
		alerts = []budget.Alert{}
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, alerts)
}

func (h *Handler) writeBudgetError(w http.ResponseWriter, reqID, entity string, err error) {
	if errors.Is(err, budget.ErrNoBudget) {
		httputil.WriteNotFoundError(w, reqID, "no budget configured for "+entity)
		return
	}
	slog.Error("budget check failed", "request_id", reqID, "entity", entity, "error", err)
	httputil.WriteInternalError(w, reqID, "Failed to check budget")
}
