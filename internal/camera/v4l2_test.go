//go:build linux

package camera

import (
	"testing"

	"github.com/blackjack/webcam"
)

func TestClosestSize(t *testing.T) {
	discrete := []webcam.FrameSize{
		{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
		{MinWidth: 1280, MaxWidth: 1280, MinHeight: 720, MaxHeight: 720},
		{MinWidth: 1920, MaxWidth: 1920, MinHeight: 1080, MaxHeight: 1080},
	}
	stepwise := []webcam.FrameSize{
		{MinWidth: 160, MaxWidth: 2000, StepWidth: 16, MinHeight: 120, MaxHeight: 1500, StepHeight: 2},
	}

	tests := []struct {
		name  string
		sizes []webcam.FrameSize
		c     Constraints
		w, h  uint32
	}{
		{"preferred picks the smallest covering size", discrete, Preferred("user"), 1920, 1080},
		{"fallback", discrete, Fallback("user"), 1280, 720},
		{"stepwise clamps to step", stepwise, Preferred("user"), 1328, 894},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := closestSize(tt.sizes, tt.c)
			if !ok || w != tt.w || h != tt.h {
				t.Errorf("closestSize = %dx%d %v, want %dx%d", w, h, ok, tt.w, tt.h)
			}
		})
	}
	if _, _, ok := closestSize(nil, Preferred("user")); ok {
		t.Error("closestSize(nil) reported a size")
	}
}

func TestYUYVToImage(t *testing.T) {
	// Two pixels: Y0=10 U=128 Y1=200 V=128.
	img, err := yuyvToImage([]byte{10, 128, 200, 128}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	r0, _, _, _ := img.At(0, 0).RGBA()
	r1, _, _, _ := img.At(1, 0).RGBA()
	if r0 >= r1 {
		t.Errorf("luma not preserved: %d >= %d", r0, r1)
	}
	if _, err := yuyvToImage([]byte{1, 2}, 2, 2); err == nil {
		t.Error("short frame accepted")
	}
}
