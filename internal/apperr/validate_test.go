package apperr

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Severity   string  `json:"severity" validate:"required,oneof=minor major critical"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Total      int     `json:"total" validate:"min=1"`
}

func TestValidate(t *testing.T) {
	if err := Validate("defect", sample{Severity: "minor", Confidence: 0.5, Total: 1}); err != nil {
		t.Fatalf("valid struct: %v", err)
	}

	tests := []struct {
		name string
		in   sample
		want string
	}{
		{"missing severity", sample{Total: 1}, "severity is required"},
		{"bad severity", sample{Severity: "urgent", Total: 1}, "severity must be one of [minor major critical]"},
		{"confidence high", sample{Severity: "minor", Confidence: 1.5, Total: 1}, "confidence must be at most 1"},
		{"total low", sample{Severity: "minor"}, "total must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("defect", tt.in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if !strings.HasPrefix(err.Error(), "defect: ") || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}
