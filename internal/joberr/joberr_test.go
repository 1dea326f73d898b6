package joberr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(AuthExpired, "pinterest.ListCampaigns", errors.New("401"))
	if KindOf(err) != AuthExpired {
		t.Errorf("KindOf = %v, want AuthExpired", KindOf(err))
	}

	// Wrapped errors still classify
	wrapped := fmt.Errorf("tenant task: %w", err)
	if KindOf(wrapped) != AuthExpired {
		t.Error("KindOf should see through fmt.Errorf wrapping")
	}

	// Plain errors default to Transient
	if KindOf(errors.New("boom")) != Transient {
		t.Error("unclassified errors should be Transient")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, AuthExpired},
		{404, NotFound},
		{429, Transient},
		{500, Transient},
		{503, Transient},
		{400, Validation},
		{422, Validation},
	}
	for _, tt := range tests {
		if got := FromStatus(tt.status, "op", "").Kind; got != tt.want {
			t.Errorf("FromStatus(%d).Kind = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIs(t *testing.T) {
	err := New(QuotaExceeded, "creative.GenerateImage", nil)
	if !Is(err, QuotaExceeded) {
		t.Error("Is(QuotaExceeded) = false")
	}
	if Is(nil, Transient) {
		t.Error("Is(nil, ...) should be false")
	}
}
