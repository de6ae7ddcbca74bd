// Package classifier scores free text into a complexity class using length,
// keyword, structural and lexical signals.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/types"
)

const (
	DefaultShortTextMax  = 100
	DefaultMediumTextMax = 500

	simpleMax   = 1.0
	moderateMax = 3.5
)

var (
	numberedItem = regexp.MustCompile(`(?:^|\n)\s*\d+[\.\)]\s`)
	bulletItem   = regexp.MustCompile(`(?:^|\n)\s*[-*]\s`)

	// Matched case-sensitively against the original text.
	codeMarkers = []string{"```", "def ", "class ", "function ", "import ", "SELECT ", "CREATE "}
)

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	shortMax        int
	mediumMax       int
	complexKeywords []string
	simpleKeywords  []string
}

// New builds a classifier from configured thresholds. Zero length cutoffs
// use the defaults; keywords are lower-cased and deduplicated.
func New(t config.ComplexityThresholds) *Classifier {
	c := &Classifier{
		shortMax:        t.ShortTextMax,
		mediumMax:       t.MediumTextMax,
		complexKeywords: normalizeKeywords(t.ComplexKeywords),
		simpleKeywords:  normalizeKeywords(t.SimpleKeywords),
	}
	if c.shortMax <= 0 {
		c.shortMax = DefaultShortTextMax
	}
	if c.mediumMax <= 0 {
		c.mediumMax = DefaultMediumTextMax
	}
	return c
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// Classify maps text to simple, moderate or complex. Empty or
// whitespace-only text is always simple.
func (c *Classifier) Classify(text string) types.Complexity {
	if strings.TrimSpace(text) == "" {
		return types.ComplexitySimple
	}
	return FromScore(c.Score(text))
}

// FromScore applies the inclusive class boundaries to a raw score.
func FromScore(score float64) types.Complexity {
	switch {
	case score <= simpleMax:
		return types.ComplexitySimple
	case score <= moderateMax:
		return types.ComplexityModerate
	default:
		return types.ComplexityComplex
	}
}

// Score returns the additive heuristic score for text. Higher is harder.
func (c *Classifier) Score(text string) float64 {
	lower := strings.TrimSpace(strings.ToLower(text))
	if lower == "" {
		return 0
	}

	var score float64

	switch n := utf8.RuneCountInString(lower); {
	case n <= c.shortMax:
	case n <= c.mediumMax:
		score += 1.0
	default:
		score += 2.0
	}

	for _, kw := range c.complexKeywords {
		if strings.Contains(lower, kw) {
			score += 1.5
		}
	}
	for _, kw := range c.simpleKeywords {
		if strings.Contains(lower, kw) {
			score -= 1.0
		}
	}

	switch q := strings.Count(lower, "?"); {
	case q > 2:
		score += 1.5
	case q > 0:
		score += 0.5
	}

	items := len(numberedItem.FindAllStringIndex(text, -1)) + len(bulletItem.FindAllStringIndex(text, -1))
	switch {
	case items >= 3:
		score += 2.0
	case items >= 1:
		score += 0.5
	}

	for _, marker := range codeMarkers {
		if strings.Contains(text, marker) {
			score += 1.5
			break
		}
	}

	switch words := len(strings.Fields(lower)); {
	case words > 200:
		score += 1.5
	case words > 50:
		score += 0.5
	}

	return score
}
