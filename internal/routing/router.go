package routing

import (
	"sync/atomic"

	"github.com/af-corp/costrouter/internal/catalog"
	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/types"
)

// Router serves routing calls from the current engine snapshot. Reloads swap
// the whole engine; in-flight calls finish on the snapshot they started with.
type Router struct {
	engine atomic.Pointer[Engine]
}

func NewRouter(e *Engine) *Router {
	r := &Router{}
	r.engine.Store(e)
	return r
}

// Engine returns the current snapshot.
func (r *Router) Engine() *Engine {
	return r.engine.Load()
}

// Swap installs e and returns the previous snapshot.
func (r *Router) Swap(e *Engine) *Engine {
	return r.engine.Swap(e)
}

// Reload builds an engine from cfg and installs it. On error the current
// engine is kept. It matches the config.Loader reload callback signature.
func (r *Router) Reload(cfg *config.RoutingConfig) error {
	e, err := FromConfig(cfg)
	if err != nil {
		return err
	}
	r.engine.Store(e)
	return nil
}

func (r *Router) Route(req Request) (Decision, error) {
	return r.Engine().Route(req)
}

func (r *Router) RouteText(text string, opts ...Option) (Decision, error) {
	return r.Engine().RouteText(text, opts...)
}

func (r *Router) AvailableModels(tier types.Tier) []catalog.Model {
	return r.Engine().AvailableModels(tier)
}
