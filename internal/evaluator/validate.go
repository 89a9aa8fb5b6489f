package evaluator

import (
	"errors"
	"fmt"

	"github.com/arbiterlabs/arbiter/pkg/formatting"
)

// ErrMalformed marks an inference response that failed structural
// validation. Retried like a transient failure; after retry exhaustion the
// orchestrator applies the degradation policy.
var ErrMalformed = errors.New("malformed inference response")

// Pointer fields distinguish absent keys from zero values; pass only
// unmarshals from a JSON boolean, so "pass": "true" fails validation
// instead of being coerced.
type batchResponse struct {
	Results []criterionResult `json:"results"`
}

type criterionResult struct {
	Criterion  *int    `json:"criterion"`
	Pass       *bool   `json:"pass"`
	Confidence *string `json:"confidence"`
	Reasoning  *string `json:"reasoning"`
	Evidence   *string `json:"evidence"`
}

// validateResponse parses and validates raw inference output for a batch of
// n criteria. Every criterion index must appear exactly once with all
// required fields present and well-typed. Returns verdicts index-aligned
// with the batch, or ErrMalformed.
func validateResponse(raw string, n int) ([]Verdict, error) {
	parsed, err := formatting.Parse[batchResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if len(parsed.Results) != n {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrMalformed, n, len(parsed.Results))
	}

	verdicts := make([]Verdict, n)
	seen := make([]bool, n)

	for _, r := range parsed.Results {
		if r.Criterion == nil {
			return nil, fmt.Errorf("%w: result missing criterion index", ErrMalformed)
		}

		idx := *r.Criterion
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: criterion index %d out of range", ErrMalformed, idx)
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: duplicate criterion index %d", ErrMalformed, idx)
		}
		seen[idx] = true

		if r.Pass == nil {
			return nil, fmt.Errorf("%w: criterion %d missing pass", ErrMalformed, idx)
		}
		if r.Confidence == nil {
			return nil, fmt.Errorf("%w: criterion %d missing confidence", ErrMalformed, idx)
		}

		confidence := Confidence(*r.Confidence)
		if !confidence.Valid() {
			return nil, fmt.Errorf("%w: criterion %d invalid confidence %q", ErrMalformed, idx, *r.Confidence)
		}

		if r.Reasoning == nil || *r.Reasoning == "" {
			return nil, fmt.Errorf("%w: criterion %d missing reasoning", ErrMalformed, idx)
		}

		verdicts[idx] = Verdict{
			Pass:       *r.Pass,
			Confidence: confidence,
			Reasoning:  *r.Reasoning,
		}
		if r.Evidence != nil {
			verdicts[idx].EvidenceHint = *r.Evidence
		}
	}

	return verdicts, nil
}
