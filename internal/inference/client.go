// Package inference defines the provider-neutral contract for the external
// AI inference service and an OpenAI-compatible HTTP implementation.
// Responses are raw text; schema validation belongs to the evaluator.
package inference

import (
	"context"
	"errors"
)

// Usage reports token consumption for a single inference call. Totals feed
// the assessment's accumulated processing cost counter.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request carries one prompt exchange to the inference service.
type Request struct {
	System string
	User   string
}

// Response holds the raw completion content and its token usage.
type Response struct {
	Content string
	Usage   Usage
}

// Client is the request/response contract for an inference provider.
// Implementations must honor ctx cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var (
	// ErrUnavailable marks transient provider failures (timeouts, 429, 5xx)
	// that are safe to retry with backoff.
	ErrUnavailable = errors.New("inference service unavailable")
	// ErrRejected marks permanent provider failures (4xx other than 429)
	// that must not be retried.
	ErrRejected = errors.New("inference request rejected")
)
