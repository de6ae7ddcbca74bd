package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/costrouter/internal/httputil"
	"github.com/af-corp/costrouter/internal/telemetry"
	"github.com/af-corp/costrouter/internal/usage"
)

const defaultDays = 30

type usageBatch struct {
	Records []usage.Record `json:"records"`
}

type usageResponse struct {
	IDs   []int64 `json:"ids,omitempty"`
	Count int     `json:"count"`
}

// LogUsage handles POST /v1/usage. The body is either one record or
// {"records": [...]}; a batch is stored all-or-nothing.
func (h *Handler) LogUsage(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if _, ok := probe["records"]; ok {
		var batch usageBatch
		if err := json.Unmarshal(raw, &batch); err != nil {
			httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
			return
		}
		if len(batch.Records) == 0 {
			httputil.WriteBadRequestError(w, reqID, "records must not be empty")
			return
		}
		n, err := h.Usage.LogUsageBatch(r.Context(), batch.Records)
		if err != nil {
			h.writeUsageError(w, reqID, err)
			return
		}
		for _, rec := range batch.Records {
			h.recordUsageMetrics(rec)
		}
		slog.Info("usage batch logged", "request_id", reqID, "count", n)
		httputil.WriteJSON(w, reqID, http.StatusCreated, usageResponse{Count: n})
		return
	}

	var rec usage.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	id, err := h.Usage.LogUsage(r.Context(), rec)
	if err != nil {
		h.writeUsageError(w, reqID, err)
		return
	}
	h.recordUsageMetrics(rec)
	httputil.WriteJSON(w, reqID, http.StatusCreated, usageResponse{IDs: []int64{id}, Count: 1})
}

func (h *Handler) writeUsageError(w http.ResponseWriter, reqID string, err error) {
	if errors.Is(err, usage.ErrInvalidRecord) {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	slog.Error("usage store failed", "request_id", reqID, "error", err)
	httputil.WriteInternalError(w, reqID, "Failed to store usage")
}

func (h *Handler) recordUsageMetrics(rec usage.Record) {
	if h.Metrics == nil {
		return
	}
	dept, project := rec.Department, rec.ProjectID
	if dept == "" {
		dept = usage.DefaultScope
	}
	if project == "" {
		project = usage.DefaultScope
	}
	h.Metrics.RecordUsage(telemetry.UsageLabels{
		Department:   dept,
		Project:      project,
		Model:        rec.Model,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.Cost,
	})
}

// Costs handles GET /v1/costs/{dimension}
func (h *Handler) Costs(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	dim, ok := usage.ParseDimension(chi.URLParam(r, "dimension"))
	if !ok {
		httputil.WriteNotFoundError(w, reqID, "unknown cost dimension "+chi.URLParam(r, "dimension"))
		return
	}
	rng, err := parseRange(r.URL.Query())
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	summaries, err := h.Usage.Costs(r.Context(), dim, r.URL.Query().Get("department"), rng)
	if err != nil {
		slog.Error("cost query failed", "request_id", reqID, "dimension", string(dim), "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to query costs")
		return
	}
	if summaries == nil {
		summaries = []usage.CostSummary{}
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, summaries)
}

// DailyCosts handles GET /v1/costs/daily
func (h *Handler) DailyCosts(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	days, err := parsePositiveInt(r.URL.Query(), "days", defaultDays)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}
	daily, err := h.Usage.DailyCosts(r.Context(), days, r.URL.Query().Get("department"))
	if err != nil {
		slog.Error("daily cost query failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to query daily costs")
		return
	}
	if daily == nil {
		daily = []usage.DailyCost{}
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, daily)
}
