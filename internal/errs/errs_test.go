package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	base := errors.New("no frame")
	err := fmt.Errorf("countdown: %w", New(CaptureFailed, "capture", base))

	if !errors.Is(err, CaptureFailed) {
		t.Errorf("errors.Is(err, CaptureFailed) = false, want true")
	}
	if errors.Is(err, DecodeFailed) {
		t.Errorf("errors.Is(err, DecodeFailed) = true, want false")
	}
	if !errors.Is(err, base) {
		t.Errorf("wrapped cause lost")
	}
	if got := KindOf(err); got != CaptureFailed {
		t.Errorf("KindOf() = %v, want CaptureFailed", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{PermissionDenied, true},
		{DeviceUnavailable, true},
		{CaptureFailed, true},
		{DecodeFailed, false},
		{FilterUnavailable, false},
		{FilterApplyFailed, false},
		{RenderFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := Retryable(New(tt.kind, "op", nil)); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
	if Retryable(errors.New("plain")) {
		t.Errorf("unclassified error should not be retryable")
	}
}
