// Package filter applies named color presets to off-screen photo buffers.
//
// Common adjustments are delegated to github.com/disintegration/gift. The
// sharpen, shadows, highlights and temperature passes are implemented here at
// the pixel level and are bit-for-bit reproducible: every channel write is
// clamped to [0,255] and rounded half to even.
package filter

import "image/color"

// Channels adjusts individual channel gains, each in -100..100.
type Channels struct {
	Red   float64 `json:"red,omitempty"`
	Green float64 `json:"green,omitempty"`
	Blue  float64 `json:"blue,omitempty"`
}

func (c Channels) isZero() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0
}

// Colorize blends every pixel toward Color by Strength (0..100).
type Colorize struct {
	Color    color.RGBA `json:"color"`
	Strength float64    `json:"strength"`
}

// Params is the parameter bag of a preset. Zero values disable a step.
type Params struct {
	Brightness float64   `json:"brightness,omitempty"` // -100..100
	Channels   Channels  `json:"channels,omitempty"`
	Contrast   float64   `json:"contrast,omitempty"`   // -100..100
	Exposure   float64   `json:"exposure,omitempty"`   // -100..100
	Vibrance   float64   `json:"vibrance,omitempty"`   // -100..100
	Saturation float64   `json:"saturation,omitempty"` // -100..100
	Sepia      float64   `json:"sepia,omitempty"`      // 0..100
	Gamma      float64   `json:"gamma,omitempty"`      // > 0, > 1 adds contrast
	Hue        float64   `json:"hue,omitempty"`        // 0..100
	Noise      float64   `json:"noise,omitempty"`      // 0..100
	Vignette   float64   `json:"vignette,omitempty"`   // 0..100
	Greyscale  bool      `json:"greyscale,omitempty"`
	Colorize   *Colorize `json:"colorize,omitempty"`

	Sharpen     float64 `json:"sharpen,omitempty"`     // 0..100
	Shadows     float64 `json:"shadows,omitempty"`     // -100..100
	Highlights  float64 `json:"highlights,omitempty"`  // -100..100
	Temperature float64 `json:"temperature,omitempty"` // -100..100
}

// Preset is a named, immutable parameter bag.
type Preset struct {
	Name   string `json:"name"`
	Params Params `json:"params"`
}

var presets = []Preset{
	{Name: "none"},
	{Name: "vivid", Params: Params{Contrast: 10, Vibrance: 35, Saturation: 15, Sharpen: 20}},
	{Name: "warm", Params: Params{Brightness: 5, Temperature: 25, Highlights: 10}},
	{Name: "cool", Params: Params{Temperature: -25, Contrast: 5, Shadows: 10}},
	{Name: "vintage", Params: Params{
		Brightness: 5, Contrast: 5, Sepia: 30, Noise: 5, Vignette: 35,
		Channels: Channels{Red: 8, Blue: 2},
		Gamma:    0.87,
	}},
	{Name: "mono", Params: Params{Greyscale: true, Contrast: 10}},
	{Name: "noir", Params: Params{Greyscale: true, Contrast: 30, Shadows: -30, Vignette: 40, Sharpen: 15}},
	{Name: "fade", Params: Params{Brightness: 10, Contrast: -20, Saturation: -25, Shadows: 25}},
	{Name: "film", Params: Params{
		Exposure: 5, Noise: 8, Highlights: -15, Temperature: 10,
		Colorize: &Colorize{Color: color.RGBA{R: 255, G: 196, B: 140, A: 255}, Strength: 8},
	}},
	{Name: "dramatic", Params: Params{Contrast: 35, Shadows: -20, Highlights: 20, Sharpen: 35, Vignette: 25}},
	{Name: "soft", Params: Params{Brightness: 8, Contrast: -10, Highlights: 15, Vibrance: 10}},
	{Name: "sepia", Params: Params{Sepia: 80, Vignette: 20}},
}

var presetIndex = func() map[string]Params {
	m := make(map[string]Params, len(presets))
	for _, p := range presets {
		m[p.Name] = p.Params
	}
	return m
}()

// Lookup returns the params of a named preset.
func Lookup(name string) (Params, bool) {
	p, ok := presetIndex[name]
	return p, ok
}

// Names lists preset names in display order.
func Names() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}

// Presets returns a copy of the preset table.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}
