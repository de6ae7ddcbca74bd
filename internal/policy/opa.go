package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/routing"
)

const query = "[data.costrouter.policy.allow, data.costrouter.policy.reason]"

// Input is the document evaluated by the routing policy.
type Input struct {
	Department    string  `json:"department"`
	Project       string  `json:"project"`
	Tier          string  `json:"tier"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// InputFor builds the policy input for a routed request.
func InputFor(req routing.Request, d routing.Decision) Input {
	return Input{
		Department:    req.Department,
		Project:       req.ProjectID,
		Tier:          string(d.Tier),
		Model:         d.Model.ModelID,
		EstimatedCost: d.EstimatedCost,
	}
}

// Evaluator checks routing decisions against an OPA bundle.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles the Rego modules found in the bundle path.
func (e *Evaluator) Load(ctx context.Context) error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(ctx, modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from in-memory sources.
func (e *Evaluator) LoadFromModules(ctx context.Context, modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against input. A disabled evaluator allows
// everything; an enabled one without compiled policies denies.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	cfg := e.cfg()
	if !cfg.Enabled {
		return true, "", nil
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return false, "no policies loaded", nil
	}

	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, "policy evaluation error", fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}

// Check evaluates a routing decision. Evaluation errors deny.
func (e *Evaluator) Check(ctx context.Context, req routing.Request, d routing.Decision) (bool, string) {
	allowed, reason, err := e.Evaluate(ctx, InputFor(req, d))
	if err != nil {
		slog.Error("policy evaluation failed", "model", d.Model.ModelID, "error", err)
		return false, "policy evaluation failed"
	}
	return allowed, reason
}
