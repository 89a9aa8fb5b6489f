package inference

import (
	"context"
	"sync/atomic"
)

// StubClient is a deterministic in-memory Client for tests and local runs.
// Respond maps the full user prompt to a canned completion; when a prompt is
// missing from the map, Fallback is returned. The same input always yields
// the same output, which the evaluation idempotence tests rely on.
type StubClient struct {
	Respond  map[string]string
	Fallback string
	Err      error
	calls    atomic.Int64
}

// Complete returns the canned response for the request's user prompt.
func (s *StubClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.calls.Add(1)

	if s.Err != nil {
		return nil, s.Err
	}

	content, ok := s.Respond[req.User]
	if !ok {
		content = s.Fallback
	}

	return &Response{
		Content: content,
		Usage: Usage{
			PromptTokens:     len(req.System)/4 + len(req.User)/4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(req.System) + len(req.User) + len(content)) / 4,
		},
	}, nil
}

// Calls returns how many completions have been requested.
func (s *StubClient) Calls() int64 {
	return s.calls.Load()
}
