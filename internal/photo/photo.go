// Package photo holds the value types passed between the capture session and
// the render pipeline.
package photo

import (
	"fmt"
	"image"
	"sort"
)

// FacingMode identifies which physical camera produced a frame.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Toggle returns the opposite facing mode.
func (m FacingMode) Toggle() FacingMode {
	if m == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Mirrored reports whether frames from this camera are mirrored for display.
// User-facing frames are shown mirrored in the live preview and in the
// rendered strip; stored frames keep sensor orientation.
func (m FacingMode) Mirrored() bool {
	return m == FacingUser
}

// ParseFacingMode validates a facing mode string.
func ParseFacingMode(s string) (FacingMode, error) {
	switch FacingMode(s) {
	case FacingUser, FacingEnvironment:
		return FacingMode(s), nil
	}
	return "", fmt.Errorf("unknown facing mode %q", s)
}

// CapturedImage is one still taken during a session. Data is a data URL.
type CapturedImage struct {
	Data       string     `json:"data"`
	FacingMode FacingMode `json:"facingMode"`
	Timestamp  int64      `json:"timestamp"` // unix milliseconds
}

// Loaded is a decoded captured image ready for compositing.
type Loaded struct {
	Image      image.Image
	FacingMode FacingMode
	Timestamp  int64
}

// SortByTimestamp orders loaded images by capture instant. The sort is
// stable so equal timestamps keep their relative order.
func SortByTimestamp(images []Loaded) []Loaded {
	sorted := make([]Loaded, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

// Snapshot copies a captured image slice so later mutation of the session
// cannot be observed by a render in flight.
func Snapshot(images []CapturedImage) []CapturedImage {
	if images == nil {
		return nil
	}
	out := make([]CapturedImage, len(images))
	copy(out, images)
	return out
}
