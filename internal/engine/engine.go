// Package engine simulates the display engine that drives the flush
// callback: it renders the background and labels, then hands the screen to
// the flush callback one strip at a time and checks that every strip is
// acknowledged exactly once.
package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/logging"
)

// FlushFunc receives one strip covering [x0,x1)×[y0,y1) and must call ack
// exactly once before returning.
type FlushFunc func(ack func(), x0, y0, x1, y1 int, pix []uint16)

// Config describes the simulated screen.
type Config struct {
	Width      int
	Height     int
	TileRows   int
	FPS        int
	Background color.RGBA
}

// ProtocolError reports a strip whose flush was not acknowledged exactly
// once.
type ProtocolError struct {
	Y0, Y1 int
	Acks   int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("engine: strip rows %d-%d acknowledged %d times", e.Y0, e.Y1, e.Acks)
}

// Engine renders frames and drives a FlushFunc.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	ui     *UI
	flush  FlushFunc
	log    *logging.Logger
	face   font.Face
	canvas *image.RGBA
	strip  []uint16

	frames         atomic.Uint64
	protocolErrors atomic.Uint64
}

// New returns an engine drawing ui and flushing through flush.
func New(cfg Config, ui *UI, flush FlushFunc, log *logging.Logger) *Engine {
	if cfg.TileRows <= 0 || cfg.TileRows > cfg.Height {
		cfg.TileRows = cfg.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 20
	}
	if log == nil {
		log = logging.Named("engine")
	}
	return &Engine{
		cfg:    cfg,
		ui:     ui,
		flush:  flush,
		log:    log,
		face:   basicfont.Face7x13,
		canvas: image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		strip:  make([]uint16, cfg.Width*cfg.TileRows),
	}
}

// Lock holds off rendering while the caller mutates shared UI state.
func (e *Engine) Lock() { e.mu.Lock() }

// Unlock releases Lock.
func (e *Engine) Unlock() { e.mu.Unlock() }

// Frames returns the number of frames rendered.
func (e *Engine) Frames() uint64 { return e.frames.Load() }

// ProtocolErrors returns the number of strips not acknowledged exactly
// once.
func (e *Engine) ProtocolErrors() uint64 { return e.protocolErrors.Load() }

// RenderFrame draws one frame and flushes it strip by strip. It returns the
// first ProtocolError seen, after flushing every strip.
func (e *Engine) RenderFrame() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	draw.Draw(e.canvas, e.canvas.Bounds(), image.NewUniform(e.cfg.Background), image.Point{}, draw.Src)
	if e.ui != nil {
		for _, l := range e.ui.Labels() {
			if l.Visible && l.Text != "" {
				e.drawLabel(l)
			}
		}
	}

	var first error
	w := e.cfg.Width
	for y0 := 0; y0 < e.cfg.Height; y0 += e.cfg.TileRows {
		y1 := y0 + e.cfg.TileRows
		if y1 > e.cfg.Height {
			y1 = e.cfg.Height
		}
		strip := e.strip[:w*(y1-y0)]
		for y := y0; y < y1; y++ {
			off := e.canvas.PixOffset(0, y)
			codec.RGBAToRGB565(e.canvas.Pix[off:off+4*w], strip[(y-y0)*w:(y-y0+1)*w])
		}

		acks := 0
		if e.flush != nil {
			e.flush(func() { acks++ }, 0, y0, w, y1, strip)
		}
		if acks != 1 {
			e.protocolErrors.Add(1)
			perr := &ProtocolError{Y0: y0, Y1: y1, Acks: acks}
			e.log.Warn("%v", perr)
			if first == nil {
				first = perr
			}
		}
	}
	e.frames.Add(1)
	return first
}

func (e *Engine) drawLabel(l Label) {
	r := image.Rect(l.Rect.X0, l.Rect.Y0, l.Rect.X1, l.Rect.Y1).Intersect(e.canvas.Bounds())
	if r.Empty() {
		return
	}
	dst := e.canvas.SubImage(r).(*image.RGBA)

	m := e.face.Metrics()
	width := font.MeasureString(e.face, l.Text)
	x := fixed.I(r.Min.X) + (fixed.I(r.Dx())-width)/2
	if x < fixed.I(r.Min.X) {
		x = fixed.I(r.Min.X)
	}
	y := fixed.I(r.Min.Y) + (fixed.I(r.Dy())+m.Ascent-m.Descent)/2

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(l.Color),
		Face: e.face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(l.Text)
}

// Run renders at the configured rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = e.RenderFrame()
		}
	}
}
