package auth

import (
	"strings"
	"testing"
)

func TestGenerateTokenIsPrefixedAndUnique(t *testing.T) {
	first, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(first, TokenPrefix) {
		t.Fatalf("expected %q prefix, got %q", TokenPrefix, first)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}
	if HashToken(first) == HashToken(second) {
		t.Fatalf("expected distinct hashes")
	}
	if HashToken(first) != HashToken(first) {
		t.Fatalf("hash must be deterministic")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer flt_abc", want: "flt_abc", ok: true},
		{header: "bearer   flt_abc ", want: "flt_abc", ok: true},
		{header: "Basic dXNlcjpwYXNz", ok: false},
		{header: "Bearer", ok: false},
		{header: "Bearer  ", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
