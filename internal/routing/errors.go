package routing

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/af-corp/costrouter/internal/types"
)

// ErrNoSuitableModel is matched by every NoSuitableModelError via errors.Is.
var ErrNoSuitableModel = errors.New("no suitable model")

// NoSuitableModelError reports that neither the target tier nor any of its
// fallbacks holds a model within the cost ceiling.
type NoSuitableModelError struct {
	Complexity types.Complexity
	MaxCost    *float64
}

func (e *NoSuitableModelError) Error() string {
	maxCost := "none"
	if e.MaxCost != nil {
		maxCost = strconv.FormatFloat(*e.MaxCost, 'f', -1, 64)
	}
	return fmt.Sprintf("no suitable model found for complexity='%s', max_cost=%s", e.Complexity, maxCost)
}

func (e *NoSuitableModelError) Unwrap() error { return ErrNoSuitableModel }
