// Package api serves the routing, usage, budget and analytics endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/costrouter/internal/analytics"
	"github.com/af-corp/costrouter/internal/breaker"
	"github.com/af-corp/costrouter/internal/budget"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/policy"
	"github.com/af-corp/costrouter/internal/routing"
	"github.com/af-corp/costrouter/internal/telemetry"
	"github.com/af-corp/costrouter/internal/usage"
)

// maxBodyBytes caps request bodies, including usage batches.
const maxBodyBytes = 4 << 20

// Deps are the services behind the HTTP API. Policy and Metrics are optional.
type Deps struct {
	Router    *routing.Router
	Usage     usage.Store
	Budgets   *budget.Manager
	Analytics *analytics.Analytics
	Policy    *policy.Evaluator
	Metrics   *telemetry.Metrics
	Version   string

	// SpendCache reports the state of the Redis spend cache breaker.
	SpendCache *breaker.Breaker
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{Deps: deps}
}

// Routes builds the chi router. metricsHandler may be nil.
func (h *Handler) Routes(cfg config.ServerConfig, metricsPath string, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(h.metricsMiddleware)

	r.Get("/healthz", h.Health)
	if metricsHandler != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", h.Route)
		r.Get("/models", h.ListModels)

		r.Post("/usage", h.LogUsage)
		r.Get("/costs/daily", h.DailyCosts)
		r.Get("/costs/{dimension}", h.Costs)

		r.Get("/budgets", h.ListBudgets)
		r.Put("/budgets/{entity}", h.SetBudget)
		r.Get("/budgets/{entity}", h.GetBudget)
		r.Delete("/budgets/{entity}", h.DeleteBudget)
		r.Get("/budgets/{entity}/status", h.BudgetStatus)
		r.Get("/budgets/{entity}/forecast", h.BudgetForecast)
		r.Get("/alerts", h.Alerts)

		r.Get("/analytics/{report}", h.AnalyticsReport)
	})
	return r
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.Router == nil || h.Router.Engine() == nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	body := map[string]string{
		"status":  status,
		"version": h.Version,
	}
	if h.SpendCache != nil {
		body["spend_cache"] = h.SpendCache.State().String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func requestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

// decodeJSON reads a size-capped JSON body into dest.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest)
}
