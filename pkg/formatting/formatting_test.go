package formatting_test

import (
	"errors"
	"testing"

	"github.com/arbiterlabs/arbiter/pkg/formatting"
)

type verdict struct {
	Pass       bool   `json:"pass"`
	Confidence string `json:"confidence"`
}

func TestParseDirectJSON(t *testing.T) {
	got, err := formatting.Parse[verdict](`{"pass": true, "confidence": "high"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !got.Pass || got.Confidence != "high" {
		t.Errorf("Parse() = %+v, want pass=true confidence=high", got)
	}
}

func TestParseMarkdownFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"json fence", "```json\n{\"pass\": true, \"confidence\": \"medium\"}\n```"},
		{"bare fence", "```\n{\"pass\": true, \"confidence\": \"medium\"}\n```"},
		{"fence with prose", "Here is the result:\n```json\n{\"pass\": true, \"confidence\": \"medium\"}\n```\nDone."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[verdict](tt.content)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !got.Pass || got.Confidence != "medium" {
				t.Errorf("Parse() = %+v, want pass=true confidence=medium", got)
			}
		})
	}
}

func TestParseFailure(t *testing.T) {
	_, err := formatting.Parse[verdict]("not json at all")
	if !errors.Is(err, formatting.ErrParseFailed) {
		t.Errorf("Parse() error = %v, want ErrParseFailed", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name      string
		n         int64
		precision int
		want      string
	}{
		{"zero", 0, 2, "0 B"},
		{"bytes", 512, 0, "512 B"},
		{"kilobytes", 2048, 0, "2 KB"},
		{"megabytes with precision", 1536 * 1024, 1, "1.5 MB"},
		{"gigabytes", 3 * 1024 * 1024 * 1024, 0, "3 GB"},
		{"negative precision clamps", 2048, -1, "2 KB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatting.FormatBytes(tt.n, tt.precision); got != tt.want {
				t.Errorf("FormatBytes(%d, %d) = %q, want %q", tt.n, tt.precision, got, tt.want)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"bare number", "1024", 1024, false},
		{"megabytes", "50MB", 50 * 1024 * 1024, false},
		{"with space", "2 GB", 2 * 1024 * 1024 * 1024, false},
		{"lowercase", "10kb", 10 * 1024, false},
		{"fractional", "1.5KB", 1536, false},
		{"empty", "", 0, true},
		{"unknown unit", "5XB", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBytes(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBytes(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
