package idgen

import (
	"strings"
	"testing"
)

func TestGenerateMonotonic(t *testing.T) {
	s := &Snowflake{workerID: 3}
	prev := s.Generate()
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		if id <= prev {
			t.Fatalf("Generate() = %d after %d, want increasing ids", id, prev)
		}
		prev = id
	}
}

func TestGenerateTxCodeFormat(t *testing.T) {
	code, err := GenerateTxCode()
	if err != nil {
		t.Fatalf("GenerateTxCode() error = %v", err)
	}
	if !strings.HasPrefix(code, "TX") || len(code) != 12 {
		t.Fatalf("GenerateTxCode() = %q, want TX + 10 chars", code)
	}
	if !IsTxCode(code) {
		t.Fatalf("IsTxCode(%q) = false, want true", code)
	}
}

func TestGenerateTxCodeUnique(t *testing.T) {
	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		code, err := GenerateTxCode()
		if err != nil {
			t.Fatalf("GenerateTxCode() error = %v", err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q after %d draws", code, i)
		}
		seen[code] = struct{}{}
	}
}

func TestIsTxCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"TXABCDEF1234", true},
		{"TXabcdef1234", false},
		{"TX12345", false},
		{"XXABCDEF1234", false},
		{"TXABCDEF123-", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsTxCode(tt.in); got != tt.want {
				t.Errorf("IsTxCode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateEntryNo(t *testing.T) {
	a, b := GenerateEntryNo(), GenerateEntryNo()
	if !strings.HasPrefix(a, "CRE") || len(a) != 3+19 {
		t.Fatalf("GenerateEntryNo() = %q, want CRE + 19 digits", a)
	}
	if a >= b {
		t.Fatalf("GenerateEntryNo() = %q then %q, want increasing", a, b)
	}
}
