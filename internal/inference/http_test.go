package inference_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbiterlabs/arbiter/internal/inference"
)

func newHTTPClient(t *testing.T, handler http.HandlerFunc) inference.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := inference.Config{BaseURL: srv.URL, Model: "validator-large"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() = %v", err)
	}

	client, err := inference.NewClient(&cfg)
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}
	return client
}

func TestHTTPClientComplete(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "the verdict"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := client.Complete(context.Background(), inference.Request{System: "sys", User: "user"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if resp.Content != "the verdict" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestHTTPClientStatusClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, inference.ErrUnavailable},
		{"server error", http.StatusInternalServerError, inference.ErrUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, inference.ErrUnavailable},
		{"bad request", http.StatusBadRequest, inference.ErrRejected},
		{"unauthorized", http.StatusUnauthorized, inference.ErrRejected},
		{"payload too large", http.StatusRequestEntityTooLarge, inference.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newHTTPClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.Complete(context.Background(), inference.Request{User: "user"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Complete() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHTTPClientEmptyChoices(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices": [], "usage": {"total_tokens": 3}}`))
	})

	_, err := client.Complete(context.Background(), inference.Request{User: "user"})
	if !errors.Is(err, inference.ErrUnavailable) {
		t.Errorf("Complete() = %v, want ErrUnavailable", err)
	}
}
