// Package evidence maps quoted text fragments from inference responses back
// onto exact page and section locations in the parsed document set.
package evidence

import (
	"strings"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/parser"
)

// DefaultThreshold is the minimum token-overlap score for a fuzzy match.
const DefaultThreshold = 0.6

// Match is a resolved evidence location. Score is 1.0 for exact containment
// and the token-overlap fraction for fuzzy matches.
type Match struct {
	DocumentID uuid.UUID `json:"document_id"`
	Page       int       `json:"page"`
	Section    string    `json:"section,omitempty"`
	Quote      string    `json:"quote"`
	Score      float64   `json:"score"`
}

// Locator finds the best-matching location for an evidence hint. It is a
// heuristic layer: failure to locate evidence yields nil, never an error.
type Locator struct {
	threshold float64
}

// NewLocator creates a Locator with the given fuzzy-match threshold.
// Non-positive thresholds fall back to DefaultThreshold.
func NewLocator(threshold float64) *Locator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Locator{threshold: threshold}
}

// Locate searches the parsed documents for the hint. Exact containment of
// the normalized hint wins immediately on the earliest page; otherwise the
// best token-overlap score at or above the threshold is returned. Returns
// nil when the hint is blank or nothing scores high enough. Ties are broken
// by document order, then earliest page.
func (l *Locator) Locate(hint string, docs []*parser.Document) *Match {
	normalized := normalize(hint)
	if normalized.text == "" {
		return nil
	}

	hintTokens := tokenSet(normalized.text)
	var best *Match

	for _, doc := range docs {
		for _, page := range doc.Pages {
			pageNorm := normalize(page.Text)
			if pageNorm.text == "" {
				continue
			}

			if idx := strings.Index(pageNorm.text, normalized.text); idx >= 0 {
				return &Match{
					DocumentID: doc.DocumentID,
					Page:       page.Number,
					Section:    page.SectionAt(pageNorm.originalOffset(idx)),
					Quote:      hint,
					Score:      1.0,
				}
			}

			score := overlapScore(hintTokens, tokenSet(pageNorm.text))
			if score >= l.threshold && (best == nil || score > best.Score) {
				best = &Match{
					DocumentID: doc.DocumentID,
					Page:       page.Number,
					Section:    page.SectionAt(0),
					Quote:      hint,
					Score:      score,
				}
			}
		}
	}

	return best
}

// overlapScore is the fraction of distinct hint tokens present in the page.
func overlapScore(hint, page map[string]struct{}) float64 {
	if len(hint) == 0 {
		return 0
	}

	found := 0
	for tok := range hint {
		if _, ok := page[tok]; ok {
			found++
		}
	}

	return float64(found) / float64(len(hint))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
