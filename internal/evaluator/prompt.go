package evaluator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/arbiterlabs/arbiter/internal/parser"
	"github.com/arbiterlabs/arbiter/internal/workflows"
)

// maxPageChars bounds how much of a single page is quoted into the prompt.
const maxPageChars = 12000

const systemPrompt = `You are a compliance document validator. You are given ` +
	`extracted document text and a numbered list of validation criteria. For each ` +
	`criterion decide whether the documents satisfy it.

Respond with ONLY a valid JSON object, no markdown fences, no commentary:
{"results": [{"criterion": <index>, "pass": <true|false>, "confidence": "<high|medium|low>", "reasoning": "<string>", "evidence": "<short verbatim quote from the documents, or omit>"}]}

Rules:
- "pass" must be a JSON boolean, never a string.
- "confidence" is high for an unambiguous textual match or mismatch, medium when ` +
	`the rule is satisfied indirectly or with interpretation, low when the documents ` +
	`give too little information to be certain.
- Every criterion must appear exactly once, even at low confidence.
- "evidence" must be copied verbatim from the document text when present.`

// truncate cuts s to at most limit bytes without splitting a multibyte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// buildPrompt renders the documents and the indexed criteria list. The
// rendering is deterministic in its inputs, so a deterministic provider
// yields identical verdicts for identical (criteria, documents) pairs.
func buildPrompt(criteria []workflows.Criterion, docs []*parser.Document) string {
	var sb strings.Builder

	sb.WriteString("Documents:\n\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "--- Document %d (%d pages) ---\n", i+1, doc.TotalPages())
		for _, page := range doc.Pages {
			text := page.Text
			if len(text) > maxPageChars {
				text = truncate(text, maxPageChars) + "\n[truncated]"
			}
			fmt.Fprintf(&sb, "[page %d]\n%s\n", page.Number, text)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Criteria:\n\n")
	for i, c := range criteria {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i, c.Name, c.Description)
		if c.ExampleText != nil && *c.ExampleText != "" {
			fmt.Fprintf(&sb, "   Example of conforming text: %s\n", *c.ExampleText)
		}
	}

	return sb.String()
}
