package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/httputil"
	"github.com/af-corp/costrouter/internal/routing"
	"github.com/af-corp/costrouter/internal/telemetry"
	"github.com/af-corp/costrouter/internal/types"
)

// Route handles POST /v1/route
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	var req routing.Request
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	decision, err := h.Router.Route(req)
	if err != nil {
		var nsm *routing.NoSuitableModelError
		if errors.As(err, &nsm) {
			if h.Metrics != nil {
				h.Metrics.RecordRoutingFailure(string(nsm.Complexity))
			}
			slog.Warn("no suitable model",
				"request_id", reqID,
				"complexity", string(nsm.Complexity),
				"department", req.Department,
			)
			httputil.WriteNoSuitableModelError(w, reqID, err.Error())
			return
		}
		slog.Error("routing failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Routing failed")
		return
	}

	if h.Policy != nil {
		if allowed, reason := h.Policy.Check(r.Context(), req, decision); !allowed {
			slog.Warn("routing decision denied by policy",
				"request_id", reqID,
				"model", decision.Model.ModelID,
				"department", req.Department,
				"reason", reason,
			)
			httputil.WritePolicyDeniedError(w, reqID, "Request denied by policy: "+reason)
			return
		}
	}

	if h.Metrics != nil {
		h.Metrics.RecordDecision(telemetry.DecisionLabels{
			Complexity:    string(decision.Complexity),
			Tier:          string(decision.Tier),
			Model:         decision.Model.ModelID,
			Fallback:      decision.Fallback,
			EstimatedCost: decision.EstimatedCost,
		})
	}

	slog.Info("request routed",
		"request_id", reqID,
		"model", decision.Model.ModelID,
		"tier", string(decision.Tier),
		"complexity", string(decision.Complexity),
		"estimated_cost_usd", decision.EstimatedCost,
		"fallback", decision.Fallback,
		"department", req.Department,
	)
	httputil.WriteJSON(w, reqID, http.StatusOK, decision)
}

type modelObject struct {
	catalog.Model
	QualityScore *float64 `json:"quality_score,omitempty"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

// ListModels handles GET /v1/models. The optional tier filters the list and
// the optional complexity adds a quality score per model.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	q := r.URL.Query()

	var tier types.Tier
	if s := q.Get("tier"); s != "" {
		t, ok := types.ParseTier(strings.ToLower(s))
		if !ok {
			httputil.WriteBadRequestError(w, reqID, "unknown tier "+s)
			return
		}
		tier = t
	}

	var (
		complexity types.Complexity
		scored     bool
	)
	if s := q.Get("complexity"); s != "" {
		c, ok := types.ParseComplexity(strings.ToLower(s))
		if !ok {
			httputil.WriteBadRequestError(w, reqID, "unknown complexity "+s)
			return
		}
		complexity, scored = c, true
	}

	models := h.Router.AvailableModels(tier)
	data := make([]modelObject, 0, len(models))
	for _, m := range models {
		obj := modelObject{Model: m}
		if scored {
			score := routing.QualityScore(m, complexity)
			obj.QualityScore = &score
		}
		data = append(data, obj)
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, modelListResponse{Object: "list", Data: data})
}
