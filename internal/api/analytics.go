package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/costrouter/internal/httputil"
)

// AnalyticsReport handles GET /v1/analytics/{report}. Reports that aggregate over
// records accept from/to; trends accept days/department; savings accepts
// baseline; tokens accepts by=model|department.
func (h *Handler) AnalyticsReport(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	report := chi.URLParam(r, "report")
	q := r.URL.Query()

	rng, err := parseRange(q)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	var result any
	switch report {
	case "summary":
		result, err = h.Analytics.SummaryStats(r.Context())
	case "savings":
		result, err = h.Analytics.SavingsVsBaseline(r.Context(), q.Get("baseline"), rng)
	case "utilization":
		result, err = h.Analytics.UtilizationRates(r.Context(), rng)
	case "efficiency":
		result, err = h.Analytics.EfficiencyMetrics(r.Context(), rng)
	case "trends":
		days, perr := parsePositiveInt(q, "days", defaultDays)
		if perr != nil {
			httputil.WriteBadRequestError(w, reqID, perr.Error())
			return
		}
		result, err = h.Analytics.CostTrends(r.Context(), days, q.Get("department"))
	case "tokens":
		switch q.Get("by") {
		case "", "model":
			result, err = h.Analytics.TokenUsageByModel(r.Context(), rng)
		case "department":
			result, err = h.Analytics.TokenUsageByDepartment(r.Context(), rng)
		default:
			httputil.WriteBadRequestError(w, reqID, "by must be model or department")
			return
		}
	default:
		httputil.WriteNotFoundError(w, reqID, "unknown analytics report "+report)
		return
	}
	if err != nil {
		slog.Error("analytics report failed", "request_id", reqID, "report", report, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to build report")
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, result)
}
