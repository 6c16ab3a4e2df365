package secrets

import (
	"encoding/base64"
	"testing"
)

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := New()
		if len(s) != 32 {
			t.Fatalf("expected 32-char secret, got %d: %q", len(s), s)
		}
		if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
			t.Fatalf("secret is not valid base64url: %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret generated: %q", s)
		}
		seen[s] = true
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		presented string
		want      bool
	}{
		{"match", "abc123", "abc123", true},
		{"mismatch", "abc123", "abc124", false},
		{"different length", "abc123", "abc12", false},
		{"empty presented", "abc123", "", false},
		{"empty stored never matches", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.stored, tt.presented); got != tt.want {
				t.Errorf("Equal(%q, %q) = %v, want %v", tt.stored, tt.presented, got, tt.want)
			}
		})
	}
}

func TestEqualGenerated(t *testing.T) {
	s := New()
	if !Equal(s, s) {
		t.Error("secret does not compare equal to itself")
	}
	if Equal(s, New()) {
		t.Error("two fresh secrets compared equal")
	}
}
