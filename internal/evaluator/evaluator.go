// Package evaluator turns criteria and parsed documents into verdicts by
// driving the external inference service. Inference output is untrusted and
// is schema-validated before use; a response that fails validation is a
// typed Malformed outcome, never a silently coerced verdict.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arbiterlabs/arbiter/internal/inference"
	"github.com/arbiterlabs/arbiter/internal/parser"
	"github.com/arbiterlabs/arbiter/internal/workflows"
	"github.com/arbiterlabs/arbiter/pkg/retry"
)

// Confidence grades a verdict's certainty. Confidence and the verdict are
// orthogonal: a low-confidence criterion still resolves pass or fail.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the three defined levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Verdict is the validated per-criterion evaluation outcome.
type Verdict struct {
	Pass         bool       `json:"pass"`
	Confidence   Confidence `json:"confidence"`
	Reasoning    string     `json:"reasoning"`
	EvidenceHint string     `json:"evidence_hint,omitempty"`
}

// Evaluator batches criteria against a shared document set and validates
// the structured inference responses.
type Evaluator struct {
	client    inference.Client
	batchSize int
	retryOpts retry.Options
	logger    *slog.Logger
}

// New creates an Evaluator. batchSize bounds how many criteria share one
// inference call; values below 1 are treated as 1.
func New(client inference.Client, batchSize int, retryOpts retry.Options, logger *slog.Logger) *Evaluator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Evaluator{
		client:    client,
		batchSize: batchSize,
		retryOpts: retryOpts,
		logger:    logger.With("system", "evaluator"),
	}
}

// BatchSize returns the configured criteria-per-call bound.
func (e *Evaluator) BatchSize() int {
	return e.batchSize
}

// EvaluateBatch evaluates up to batchSize criteria against the shared
// document set in a single inference call, retrying transient provider
// failures and malformed responses with backoff. The returned verdicts are
// index-aligned with criteria. Usage is accumulated across attempts so the
// cost counter reflects retried calls too.
func (e *Evaluator) EvaluateBatch(
	ctx context.Context,
	criteria []workflows.Criterion,
	docs []*parser.Document,
) ([]Verdict, inference.Usage, error) {
	if len(criteria) == 0 {
		return nil, inference.Usage{}, nil
	}
	if len(criteria) > e.batchSize {
		return nil, inference.Usage{}, fmt.Errorf("batch of %d exceeds limit %d", len(criteria), e.batchSize)
	}

	req := inference.Request{
		System: systemPrompt,
		User:   buildPrompt(criteria, docs),
	}

	var (
		verdicts []Verdict
		usage    inference.Usage
	)

	err := retry.Do(ctx, e.retryOpts, func(ctx context.Context) error {
		resp, err := e.client.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, inference.ErrRejected) {
				return retry.Stop(err)
			}
			return err
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		parsed, err := validateResponse(resp.Content, len(criteria))
		if err != nil {
			e.logger.Warn("malformed inference response", "error", err)
			return err
		}

		verdicts = parsed
		return nil
	})
	if err != nil {
		return nil, usage, err
	}

	return verdicts, usage, nil
}
