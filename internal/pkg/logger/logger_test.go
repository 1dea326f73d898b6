package logger

import (
	"strings"
	"testing"
)

func TestRedactToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"long token keeps prefix", "shpat_abcdef1234567890", "shpat_****"},
		{"short value fully masked", "abc123", "****"},
		{"boundary length fully masked", "0123456789", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactToken(tt.in); got != tt.want {
				t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactSecretValue(t *testing.T) {
	// Sensitive keys are masked regardless of value shape
	got := redactSecretValue("access_token", "plain-value-with-no-prefix")
	if got == "plain-value-with-no-prefix" {
		t.Error("access_token value should be redacted")
	}

	// Embedded tokens in generic fields are caught by prefix
	got = redactSecretValue("error", "401 unauthorized for shpat_aaaabbbbccccdddd")
	if strings.Contains(got, "aaaabbbbccccdddd") {
		t.Errorf("embedded shop token not redacted: %q", got)
	}

	// Plain values in generic fields pass through
	got = redactSecretValue("shop", "example.myshopify.com")
	if got != "example.myshopify.com" {
		t.Errorf("plain value modified: %q", got)
	}
}
