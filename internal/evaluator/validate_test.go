package evaluator

import (
	"errors"
	"testing"
)

func TestValidateResponse(t *testing.T) {
	raw := `{"results": [
		{"criterion": 1, "pass": false, "confidence": "low", "reasoning": "no mention of retention"},
		{"criterion": 0, "pass": true, "confidence": "high", "reasoning": "explicit statement on page 2", "evidence": "encrypted at rest"}
	]}`

	verdicts, err := validateResponse(raw, 2)
	if err != nil {
		t.Fatalf("validateResponse() = %v", err)
	}

	if !verdicts[0].Pass {
		t.Error("verdicts[0].Pass = false, want true")
	}
	if verdicts[0].Confidence != ConfidenceHigh {
		t.Errorf("verdicts[0].Confidence = %q, want high", verdicts[0].Confidence)
	}
	if verdicts[0].EvidenceHint != "encrypted at rest" {
		t.Errorf("verdicts[0].EvidenceHint = %q", verdicts[0].EvidenceHint)
	}
	if verdicts[1].Pass {
		t.Error("verdicts[1].Pass = true, want false")
	}
	if verdicts[1].EvidenceHint != "" {
		t.Errorf("verdicts[1].EvidenceHint = %q, want empty", verdicts[1].EvidenceHint)
	}
}

func TestValidateResponseFenced(t *testing.T) {
	raw := "```json\n{\"results\": [{\"criterion\": 0, \"pass\": true, \"confidence\": \"medium\", \"reasoning\": \"ok\"}]}\n```"

	verdicts, err := validateResponse(raw, 1)
	if err != nil {
		t.Fatalf("validateResponse() = %v", err)
	}
	if verdicts[0].Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want medium", verdicts[0].Confidence)
	}
}

func TestValidateResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		n    int
	}{
		{
			"not json",
			`the documents clearly satisfy all criteria`,
			1,
		},
		{
			"wrong result count",
			`{"results": [{"criterion": 0, "pass": true, "confidence": "high", "reasoning": "ok"}]}`,
			2,
		},
		{
			"missing criterion index",
			`{"results": [{"pass": true, "confidence": "high", "reasoning": "ok"}]}`,
			1,
		},
		{
			"index out of range",
			`{"results": [{"criterion": 3, "pass": true, "confidence": "high", "reasoning": "ok"}]}`,
			1,
		},
		{
			"duplicate index",
			`{"results": [
				{"criterion": 0, "pass": true, "confidence": "high", "reasoning": "ok"},
				{"criterion": 0, "pass": false, "confidence": "low", "reasoning": "no"}
			]}`,
			2,
		},
		{
			"string pass",
			`{"results": [{"criterion": 0, "pass": "true", "confidence": "high", "reasoning": "ok"}]}`,
			1,
		},
		{
			"missing pass",
			`{"results": [{"criterion": 0, "confidence": "high", "reasoning": "ok"}]}`,
			1,
		},
		{
			"invalid confidence",
			`{"results": [{"criterion": 0, "pass": true, "confidence": "certain", "reasoning": "ok"}]}`,
			1,
		},
		{
			"missing confidence",
			`{"results": [{"criterion": 0, "pass": true, "reasoning": "ok"}]}`,
			1,
		},
		{
			"empty reasoning",
			`{"results": [{"criterion": 0, "pass": true, "confidence": "high", "reasoning": ""}]}`,
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateResponse(tt.raw, tt.n)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("validateResponse() = %v, want ErrMalformed", err)
			}
		})
	}
}
