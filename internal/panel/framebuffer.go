package panel

import (
	"fmt"
	"sync"
)

// Framebuffer records draws into an in-memory RGB565 screen. A draw that
// reaches the bottom row completes a frame and triggers OnFrame.
type Framebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	pix    []uint16
	draws  int
	frames int
	oob    int

	// OnFrame, when set, receives a copy of every completed frame.
	OnFrame func(pix []uint16, width, height int)
}

// NewFramebuffer returns a width×height recorder.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{width: width, height: height, pix: make([]uint16, width*height)}
}

// DrawBitmap implements Panel.
func (f *Framebuffer) DrawBitmap(x0, y0, x1, y1 int, pixels []uint16) error {
	f.mu.Lock()
	r := Rect{x0, y0, x1, y1}
	if r.Empty() || x0 < 0 || y0 < 0 || x1 > f.width || y1 > f.height || len(pixels) < r.Dx()*r.Dy() {
		f.oob++
		f.mu.Unlock()
		return fmt.Errorf("%w: %v with %d pixels", ErrOutOfBounds, r, len(pixels))
	}

	w := r.Dx()
	for y := y0; y < y1; y++ {
		copy(f.pix[y*f.width+x0:y*f.width+x1], pixels[(y-y0)*w:(y-y0+1)*w])
	}
	f.draws++

	var snapshot []uint16
	if y1 == f.height && x1 == f.width {
		f.frames++
		if f.OnFrame != nil {
			snapshot = append([]uint16(nil), f.pix...)
		}
	}
	onFrame := f.OnFrame
	f.mu.Unlock()

	if snapshot != nil {
		onFrame(snapshot, f.width, f.height)
	}
	return nil
}

// Size returns the panel geometry.
func (f *Framebuffer) Size() (int, int) {
	return f.width, f.height
}

// Snapshot returns a copy of the screen.
func (f *Framebuffer) Snapshot() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.pix...)
}

// At returns the pixel at (x, y).
func (f *Framebuffer) At(x, y int) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pix[y*f.width+x]
}

// FramebufferStats counts recorder activity.
type FramebufferStats struct {
	Draws       int
	Frames      int
	OutOfBounds int
}

// Stats returns the counters.
func (f *Framebuffer) Stats() FramebufferStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FramebufferStats{Draws: f.draws, Frames: f.frames, OutOfBounds: f.oob}
}
