// Package compositor assembles display tiles into a full frame, overlays
// the current sprite frame and streams the result to the panel.
package compositor

import (
	"sync/atomic"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/logging"
	"github.com/rcarmo/go-emote/internal/memory"
	"github.com/rcarmo/go-emote/internal/panel"
	"github.com/rcarmo/go-emote/internal/sprite"
)

// DefaultBlendThreshold is the gradient, in summed 8-bit channel steps,
// above which a sprite pixel is mixed with the background.
const DefaultBlendThreshold = 48

// LabelSource reports the UI label regions for the current frame.
type LabelSource interface {
	// ExclusionRects appends the rectangles sprites must not cover.
	ExclusionRects(dst []panel.Rect) []panel.Rect
	// MirrorRects appends the rectangles to mirror horizontally.
	MirrorRects(dst []panel.Rect) []panel.Rect
}

// SpriteSource yields the freshest sprite frame, or nil.
type SpriteSource interface {
	Latest() *sprite.Frame
}

// Config is the screen geometry and overlay tuning.
type Config struct {
	Width  int
	Height int
	// BlendThreshold below zero disables edge blending.
	BlendThreshold int
	// MirrorLabels reverses label regions row by row before stream out.
	MirrorLabels bool
}

// Options wires a Compositor.
type Options struct {
	Config  Config
	Panel   panel.Panel
	Sprites SpriteSource
	Labels  LabelSource
	Heap    *memory.Heap
	Logger  *logging.Logger
}

// Stats counts compositor activity.
type Stats struct {
	Tiles              uint64
	Frames             uint64
	Overlays           uint64
	CompositeFallbacks uint64
	LineFallbacks      uint64
	PanelErrors        uint64
}

// Compositor implements the display engine's flush callback. OnFlush must
// not be called concurrently; the display engine serialises flushes.
type Compositor struct {
	cfg     Config
	screen  panel.Rect
	panel   panel.Panel
	sprites SpriteSource
	labels  LabelSource
	heap    *memory.Heap
	log     *logging.Logger

	composite []uint16
	line      []uint16
	excl      []panel.Rect
	rowExcl   []panel.Rect
	mirror    []panel.Rect

	tiles              atomic.Uint64
	frames             atomic.Uint64
	overlays           atomic.Uint64
	compositeFallbacks atomic.Uint64
	lineFallbacks      atomic.Uint64
	panelErrors        atomic.Uint64
}

// New returns a Compositor.
func New(opts Options) *Compositor {
	c := &Compositor{
		cfg:     opts.Config,
		screen:  panel.R(0, 0, opts.Config.Width, opts.Config.Height),
		panel:   opts.Panel,
		sprites: opts.Sprites,
		labels:  opts.Labels,
		heap:    opts.Heap,
		log:     opts.Logger,
	}
	if c.log == nil {
		c.log = logging.Named("compositor")
	}
	return c
}

// Stats returns a snapshot of the counters.
func (c *Compositor) Stats() Stats {
	return Stats{
		Tiles:              c.tiles.Load(),
		Frames:             c.frames.Load(),
		Overlays:           c.overlays.Load(),
		CompositeFallbacks: c.compositeFallbacks.Load(),
		LineFallbacks:      c.lineFallbacks.Load(),
		PanelErrors:        c.panelErrors.Load(),
	}
}

// OnFlush receives one tile covering [x0,x1)×[y0,y1). pix holds the tile
// row-major. ack is called exactly once before OnFlush returns.
func (c *Compositor) OnFlush(ack func(), x0, y0, x1, y1 int, pix []uint16) {
	defer func() {
		if ack != nil {
			ack()
		}
	}()
	c.tiles.Add(1)

	tile := panel.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
	if tile.Empty() {
		return
	}

	var err error
	if c.composite, err = c.heap.Grow16(c.composite, c.cfg.Width*c.cfg.Height, memory.CapSPIRAM); err != nil {
		c.compositeFallbacks.Add(1)
		c.log.Debug("composite buffer unavailable, passing tile %v through: %v", tile, err)
		c.draw(x0, y0, x1, y1, pix)
		return
	}

	c.accumulate(tile, pix)
	if x1 < c.cfg.Width || y1 < c.cfg.Height {
		return
	}

	c.frames.Add(1)
	if f := c.currentSprite(); f != nil {
		if c.labels != nil {
			c.excl = c.labels.ExclusionRects(c.excl[:0])
		}
		for _, pl := range f.Placements {
			c.overlay(f, pl)
		}
		c.overlays.Add(1)
	}
	if c.cfg.MirrorLabels && c.labels != nil {
		c.mirror = c.labels.MirrorRects(c.mirror[:0])
		for _, r := range c.mirror {
			c.mirrorRegion(r)
		}
	}
	c.streamOut()
}

func (c *Compositor) currentSprite() *sprite.Frame {
	if c.sprites == nil {
		return nil
	}
	f := c.sprites.Latest()
	if f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height {
		return nil
	}
	return f
}

func (c *Compositor) draw(x0, y0, x1, y1 int, pix []uint16) {
	if c.panel == nil {
		return
	}
	if err := c.panel.DrawBitmap(x0, y0, x1, y1, pix); err != nil {
		c.panelErrors.Add(1)
		c.log.Debug("panel draw (%d,%d)-(%d,%d): %v", x0, y0, x1, y1, err)
	}
}

// accumulate copies the on-screen part of tile into the composite.
func (c *Compositor) accumulate(tile panel.Rect, pix []uint16) {
	clip := tile.Intersect(c.screen)
	if clip.Empty() {
		return
	}
	tw := tile.Dx()
	w := c.cfg.Width
	for y := clip.Y0; y < clip.Y1; y++ {
		src := (y-tile.Y0)*tw + (clip.X0 - tile.X0)
		if src+clip.Dx() > len(pix) {
			return
		}
		copy(c.composite[y*w+clip.X0:y*w+clip.X1], pix[src:src+clip.Dx()])
	}
}

// overlay blits f at pl, clipped to the screen and skipping label
// exclusion rectangles.
func (c *Compositor) overlay(f *sprite.Frame, pl sprite.Placement) {
	dst := panel.R(pl.X, pl.Y, f.Width, f.Height).Intersect(c.screen)
	if dst.Empty() {
		return
	}

	fw, fh := f.Width, f.Height
	w := c.cfg.Width
	threshold := c.cfg.BlendThreshold
	for y := dst.Y0; y < dst.Y1; y++ {
		c.rowExcl = c.rowExcl[:0]
		for _, r := range c.excl {
			if y >= r.Y0 && y < r.Y1 {
				c.rowExcl = append(c.rowExcl, r)
			}
		}

		sy := y - pl.Y
		srow := f.Pix[sy*fw : (sy+1)*fw]
		var below []uint16
		if sy+1 < fh {
			below = f.Pix[(sy+1)*fw : (sy+2)*fw]
		}
		crow := c.composite[y*w : (y+1)*w]

	pixels:
		for x := dst.X0; x < dst.X1; x++ {
			for _, r := range c.rowExcl {
				if x >= r.X0 && x < r.X1 {
					continue pixels
				}
			}

			sx := x - pl.X
			if pl.Mirror {
				sx = fw - 1 - sx
			}
			p := srow[sx]
			if threshold < 0 {
				crow[x] = p
				continue
			}

			// right is the next pixel on screen, which runs backwards
			// through a mirrored sprite.
			right, down := p, p
			if !pl.Mirror && sx+1 < fw {
				right = srow[sx+1]
			} else if pl.Mirror && sx > 0 {
				right = srow[sx-1]
			}
			if below != nil {
				down = below[sx]
			}
			if codec.Diff565(p, right)+codec.Diff565(p, down) > threshold {
				crow[x] = codec.Blend565Half(p, crow[x])
			} else {
				crow[x] = p
			}
		}
	}
}

func (c *Compositor) mirrorRegion(r panel.Rect) {
	r = r.Intersect(c.screen)
	if r.Empty() {
		return
	}
	w := c.cfg.Width
	for y := r.Y0; y < r.Y1; y++ {
		codec.ReverseRow(c.composite[y*w+r.X0 : y*w+r.X1])
	}
}

// streamOut sends the composite row by row through the line buffer, or in
// one blit when no line buffer can be had.
func (c *Compositor) streamOut() {
	w, h := c.cfg.Width, c.cfg.Height
	if cap(c.line) < w {
		line, err := c.heap.Alloc16Preferred(w, memory.CapInternal|memory.CapDMA, memory.CapDMA)
		if err != nil {
			c.lineFallbacks.Add(1)
			c.log.Debug("line buffer unavailable, full blit: %v", err)
			c.draw(0, 0, w, h, c.composite)
			return
		}
		c.line = line
	}

	line := c.line[:w]
	for y := 0; y < h; y++ {
		copy(line, c.composite[y*w:(y+1)*w])
		c.draw(0, y, w, y+1, line)
	}
}
