package types

// Complexity is the heuristic difficulty class of a request.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Complexities lists every complexity from easiest to hardest.
var Complexities = []Complexity{ComplexitySimple, ComplexityModerate, ComplexityComplex}

// Level returns 0, 1 or 2 for simple, moderate and complex, or -1 when unknown.
func (c Complexity) Level() int {
	switch c {
	case ComplexitySimple:
		return 0
	case ComplexityModerate:
		return 1
	case ComplexityComplex:
		return 2
	default:
		return -1
	}
}

func (c Complexity) Valid() bool { return c.Level() >= 0 }

func ParseComplexity(s string) (Complexity, bool) {
	switch Complexity(s) {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return Complexity(s), true
	default:
		return "", false
	}
}
