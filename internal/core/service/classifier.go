package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mrodas/batchworks/internal/core/domain"
)

// defaultProteinPatterns is the legacy fallback applied when no active
// classification rules exist. Administrators normally maintain the rule
// set; this list only keeps existing recipes validating when the rules
// table is emptied.
var defaultProteinPatterns = []string{
	"carne",
	"frango",
	"peito",
	"pernil",
	"toucinho",
}

// proteinClassifier decides whether an ingredient counts toward the 100%
// composition constraint. It is a per-call snapshot: callers build a fresh
// one from current rules on every validation.
type proteinClassifier struct {
	patterns []string
}

// newProteinClassifier folds the active rule patterns, falling back to the
// legacy defaults when none are active.
func newProteinClassifier(rules []domain.ClassificationRule) *proteinClassifier {
	var patterns []string
	for _, r := range rules {
		if !r.Active || r.Pattern == "" {
			continue
		}
		patterns = append(patterns, foldName(r.Pattern))
	}

	if len(patterns) == 0 {
		patterns = make([]string, 0, len(defaultProteinPatterns))
		for _, p := range defaultProteinPatterns {
			patterns = append(patterns, foldName(p))
		}
	}

	return &proteinClassifier{patterns: patterns}
}

// IsProtein matches the ingredient name against every pattern as a
// case-insensitive, diacritic-insensitive substring.
func (c *proteinClassifier) IsProtein(name string) bool {
	folded := foldName(name)
	for _, p := range c.patterns {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName lowercases and strips combining marks so that "Peito" matches
// "péito" and vice versa.
func foldName(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		// Fold what we can; a transform failure leaves the input usable.
		stripped = s
	}
	return strings.ToLower(stripped)
}
