package inference_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arbiterlabs/arbiter/internal/inference"
)

func TestConfigFinalizeDefaults(t *testing.T) {
	cfg := inference.Config{BaseURL: "http://localhost:8000", Model: "validator-large"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() = %v", err)
	}

	if cfg.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", cfg.Temperature)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.MaxTokens)
	}
	if cfg.RequestTimeoutDuration() != 90*time.Second {
		t.Errorf("RequestTimeoutDuration() = %v, want 90s", cfg.RequestTimeoutDuration())
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := inference.Config{BaseURL: "http://base", Model: "validator-large", MaxTokens: 2048}
	cfg.Merge(&inference.Config{Model: "validator-small", RequestTimeout: "30s"})

	if cfg.BaseURL != "http://base" {
		t.Errorf("BaseURL = %q, want base preserved", cfg.BaseURL)
	}
	if cfg.Model != "validator-small" {
		t.Errorf("Model = %q, want validator-small", cfg.Model)
	}
	if cfg.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cfg.MaxTokens)
	}
	if cfg.RequestTimeout != "30s" {
		t.Errorf("RequestTimeout = %q, want 30s", cfg.RequestTimeout)
	}
}

func TestStubClientDeterministic(t *testing.T) {
	stub := &inference.StubClient{
		Respond:  map[string]string{"prompt-a": "answer-a"},
		Fallback: "fallback",
	}

	first, err := stub.Complete(context.Background(), inference.Request{User: "prompt-a"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	second, err := stub.Complete(context.Background(), inference.Request{User: "prompt-a"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}

	if first.Content != "answer-a" || first.Content != second.Content {
		t.Errorf("responses differ: %q vs %q", first.Content, second.Content)
	}
	if first.Usage != second.Usage {
		t.Errorf("usage differs: %+v vs %+v", first.Usage, second.Usage)
	}
	if stub.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", stub.Calls())
	}
}

func TestStubClientFallback(t *testing.T) {
	stub := &inference.StubClient{Fallback: "fallback"}

	resp, err := stub.Complete(context.Background(), inference.Request{User: "unknown"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if resp.Content != "fallback" {
		t.Errorf("Content = %q, want fallback", resp.Content)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("TotalTokens = 0, want > 0")
	}
}

func TestStubClientError(t *testing.T) {
	stub := &inference.StubClient{Err: inference.ErrUnavailable}

	_, err := stub.Complete(context.Background(), inference.Request{User: "anything"})
	if !errors.Is(err, inference.ErrUnavailable) {
		t.Errorf("Complete() = %v, want ErrUnavailable", err)
	}
}

func TestStubClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &inference.StubClient{Fallback: "fallback"}
	_, err := stub.Complete(ctx, inference.Request{User: "anything"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() = %v, want context.Canceled", err)
	}
	if stub.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", stub.Calls())
	}
}
