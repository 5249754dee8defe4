// Package frame is the read-only frame layout registry: frame id to grid
// shape and pixel geometry.
package frame

import (
	"fmt"
	"image"
	"math"
)

// Align is the horizontal text alignment of the date/time stamp.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

type Size struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

type Padding struct {
	Top    int `yaml:"top" json:"top"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Left   int `yaml:"left" json:"left"`
	Right  int `yaml:"right" json:"right"`
}

type Gap struct {
	Vertical   int `yaml:"vertical" json:"vertical"`
	Horizontal int `yaml:"horizontal" json:"horizontal"`
}

// Anchor positions the date/time stamp. Y is the text baseline.
type Anchor struct {
	X     int   `yaml:"x" json:"x"`
	Y     int   `yaml:"y" json:"y"`
	Align Align `yaml:"align" json:"align"`
}

// Layout is a named grid template.
type Layout struct {
	ID       string  `yaml:"id" json:"id"`
	Name     string  `yaml:"name" json:"name"`
	GridRows int     `yaml:"grid_rows" json:"gridRows"`
	GridCols int     `yaml:"grid_cols" json:"gridCols"`
	Canvas   Size    `yaml:"canvas" json:"canvas"`
	Photo    Size    `yaml:"photo" json:"photo"`
	Padding  Padding `yaml:"padding" json:"padding"`
	Gap      Gap     `yaml:"gap" json:"gap"`
	Datetime *Anchor `yaml:"datetime,omitempty" json:"datetime,omitempty"`
}

// TotalSlots is the number of photos a session on this layout captures.
func (l Layout) TotalSlots() int {
	return l.GridRows * l.GridCols
}

// Cell returns the draw rectangle of the photo at index i in row-major order.
func (l Layout) Cell(i int) image.Rectangle {
	cols := l.GridCols
	if cols < 1 {
		cols = 1
	}
	row := i / cols
	col := i % cols
	x := l.Padding.Left + col*(l.Photo.Width+l.Gap.Horizontal)
	y := l.Padding.Top + row*(l.Photo.Height+l.Gap.Vertical)
	return image.Rect(x, y, x+l.Photo.Width, y+l.Photo.Height)
}

// Validate checks the geometry is drawable.
func (l Layout) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("layout has no id")
	}
	if l.GridRows < 1 || l.GridCols < 1 {
		return fmt.Errorf("layout %s: grid %dx%d must be at least 1x1", l.ID, l.GridRows, l.GridCols)
	}
	if l.Canvas.Width <= 0 || l.Canvas.Height <= 0 {
		return fmt.Errorf("layout %s: canvas size %dx%d is empty", l.ID, l.Canvas.Width, l.Canvas.Height)
	}
	if l.Photo.Width <= 0 || l.Photo.Height <= 0 {
		return fmt.Errorf("layout %s: photo size %dx%d is empty", l.ID, l.Photo.Width, l.Photo.Height)
	}
	if l.Datetime != nil {
		switch l.Datetime.Align {
		case AlignLeft, AlignCenter, AlignRight:
		default:
			return fmt.Errorf("layout %s: unknown datetime alignment %q", l.ID, l.Datetime.Align)
		}
	}
	return nil
}

// Print geometry is specified in millimetres at 6x the 96dpi pixel density.
const scaleFactor = 6

func toPx(mm float64) int {
	return int(math.Round(mm * scaleFactor * 3.779528))
}
