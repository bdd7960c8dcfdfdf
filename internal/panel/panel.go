// Package panel defines the sink composed frames are streamed to, plus the
// framebuffer, fan-out and SPI implementations.
package panel

import (
	"errors"
	"fmt"
)

// Rect is a screen rectangle with exclusive X1/Y1.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// R is shorthand for a Rect from its origin and size.
func R(x, y, w, h int) Rect {
	return Rect{X0: x, Y0: y, X1: x + w, Y1: y + h}
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

// Dx returns the width.
func (r Rect) Dx() int { return r.X1 - r.X0 }

// Dy returns the height.
func (r Rect) Dy() int { return r.Y1 - r.Y0 }

// Intersect returns the overlap of r and s.
func (r Rect) Intersect(s Rect) Rect {
	if r.X0 < s.X0 {
		r.X0 = s.X0
	}
	if r.Y0 < s.Y0 {
		r.Y0 = s.Y0
	}
	if r.X1 > s.X1 {
		r.X1 = s.X1
	}
	if r.Y1 > s.Y1 {
		r.Y1 = s.Y1
	}
	if r.Empty() {
		return Rect{}
	}
	return r
}

// Contains reports whether (x, y) lies in r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X0, r.Y0, r.X1, r.Y1)
}

var ErrOutOfBounds = errors.New("panel: draw outside the panel")

// Panel receives pixel rectangles. pixels holds (x1-x0)*(y1-y0) RGB565
// values, row-major; x1 and y1 are exclusive.
type Panel interface {
	DrawBitmap(x0, y0, x1, y1 int, pixels []uint16) error
}

// Multi draws to every panel and returns the first error.
type Multi []Panel

// DrawBitmap implements Panel.
func (m Multi) DrawBitmap(x0, y0, x1, y1 int, pixels []uint16) error {
	var first error
	for _, p := range m {
		if err := p.DrawBitmap(x0, y0, x1, y1, pixels); err != nil && first == nil {
			first = err
		}
	}
	return first
}
