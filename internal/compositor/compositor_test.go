package compositor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/memory"
	"github.com/rcarmo/go-emote/internal/panel"
	"github.com/rcarmo/go-emote/internal/sprite"
)

const bg = uint16(0x0821)

type labels struct {
	excl   []panel.Rect
	mirror []panel.Rect
}

func (l *labels) ExclusionRects(dst []panel.Rect) []panel.Rect { return append(dst, l.excl...) }
func (l *labels) MirrorRects(dst []panel.Rect) []panel.Rect    { return append(dst, l.mirror...) }

type recorder struct {
	draws []panel.Rect
	fb    *panel.Framebuffer
}

func (r *recorder) DrawBitmap(x0, y0, x1, y1 int, pix []uint16) error {
	r.draws = append(r.draws, panel.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1})
	return r.fb.DrawBitmap(x0, y0, x1, y1, pix)
}

func newRecorder(w, h int) *recorder {
	return &recorder{fb: panel.NewFramebuffer(w, h)}
}

func fill(n int, v uint16) []uint16 {
	pix := make([]uint16, n)
	for i := range pix {
		pix[i] = v
	}
	return pix
}

// flushScreen delivers the whole screen as horizontal strips and returns
// the number of acknowledgements.
func flushScreen(c *Compositor, w, h, strip int) int {
	acks := 0
	for y := 0; y < h; y += strip {
		y1 := y + strip
		if y1 > h {
			y1 = h
		}
		c.OnFlush(func() { acks++ }, 0, y, w, y1, fill(w*(y1-y), bg))
	}
	return acks
}

func TestCompositeOnlyAfterFinalTile(t *testing.T) {
	rec := newRecorder(8, 8)
	ring := sprite.NewRing()
	ring.Publish(2, 2, fill(4, 0xF800), []sprite.Placement{{X: 3, Y: 5}}, 1, 0)

	c := New(Options{
		Config:  Config{Width: 8, Height: 8, BlendThreshold: -1},
		Panel:   rec,
		Sprites: ring,
	})

	acks := 0
	c.OnFlush(func() { acks++ }, 0, 0, 8, 4, fill(32, bg))
	assert.Equal(t, 1, acks)
	assert.Empty(t, rec.draws)
	assert.Zero(t, c.Stats().Overlays)

	c.OnFlush(func() { acks++ }, 0, 4, 8, 8, fill(32, bg))
	assert.Equal(t, 2, acks)
	require.Len(t, rec.draws, 8)
	for y, d := range rec.draws {
		assert.Equal(t, panel.Rect{X0: 0, Y0: y, X1: 8, Y1: y + 1}, d)
	}
	assert.Equal(t, uint16(0xF800), rec.fb.At(3, 5))
	assert.Equal(t, uint16(0xF800), rec.fb.At(4, 6))
	assert.Equal(t, bg, rec.fb.At(2, 5))
	assert.Equal(t, Stats{Tiles: 2, Frames: 1, Overlays: 1}, c.Stats())
}

func TestPlacementClipping(t *testing.T) {
	const w, h = 16, 12
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 200; i++ {
		sw, sh := rng.Intn(20)+1, rng.Intn(20)+1
		pl := sprite.Placement{X: rng.Intn(50) - 25, Y: rng.Intn(50) - 25, Mirror: rng.Intn(2) == 0}

		ring := sprite.NewRing()
		ring.Publish(sw, sh, fill(sw*sh, 0xFFFF), []sprite.Placement{pl}, 0, 0)
		rec := newRecorder(w, h)
		c := New(Options{
			Config:  Config{Width: w, Height: h, BlendThreshold: DefaultBlendThreshold},
			Panel:   rec,
			Sprites: ring,
		})

		require.Equal(t, 3, flushScreen(c, w, h, 5))
		require.Zero(t, rec.fb.Stats().OutOfBounds)
		require.Len(t, c.composite, w*h)

		area := panel.R(pl.X, pl.Y, sw, sh)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !area.Contains(x, y) {
					require.Equal(t, bg, rec.fb.At(x, y), "pixel %d,%d placement %+v", x, y, pl)
				}
			}
		}
	}
}

func TestLabelExclusion(t *testing.T) {
	rec := newRecorder(8, 4)
	ring := sprite.NewRing()
	ring.Publish(8, 4, fill(32, 0xFFFF), []sprite.Placement{{}}, 0, 0)

	c := New(Options{
		Config:  Config{Width: 8, Height: 4, BlendThreshold: DefaultBlendThreshold},
		Panel:   rec,
		Sprites: ring,
		Labels:  &labels{excl: []panel.Rect{{X0: 2, Y0: 1, X1: 5, Y1: 3}}},
	})
	flushScreen(c, 8, 4, 4)

	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if x >= 2 && x < 5 && y >= 1 && y < 3 {
				assert.Equal(t, bg, rec.fb.At(x, y))
			} else {
				assert.Equal(t, uint16(0xFFFF), rec.fb.At(x, y))
			}
		}
	}
}

func TestMirroredPlacement(t *testing.T) {
	rec := newRecorder(4, 1)
	ring := sprite.NewRing()
	ring.Publish(4, 1, []uint16{1, 2, 3, 4}, []sprite.Placement{{Mirror: true}}, 0, 0)

	c := New(Options{Config: Config{Width: 4, Height: 1, BlendThreshold: -1}, Panel: rec, Sprites: ring})
	flushScreen(c, 4, 1, 1)
	assert.Equal(t, []uint16{4, 3, 2, 1}, rec.fb.Snapshot())
}

func TestEdgeBlend(t *testing.T) {
	// A hard white/black edge: the white pixel next to black blends with
	// the background, interior pixels do not.
	pix := []uint16{0xFFFF, 0xFFFF, 0x0000}
	ring := sprite.NewRing()
	ring.Publish(3, 1, pix, []sprite.Placement{{}}, 0, 0)

	rec := newRecorder(3, 1)
	c := New(Options{Config: Config{Width: 3, Height: 1, BlendThreshold: DefaultBlendThreshold}, Panel: rec, Sprites: ring})
	flushScreen(c, 3, 1, 1)

	assert.Equal(t, uint16(0xFFFF), rec.fb.At(0, 0))
	assert.Equal(t, codec.Blend565Half(0xFFFF, bg), rec.fb.At(1, 0))
	assert.Equal(t, uint16(0x0000), rec.fb.At(2, 0))

	// Disabled threshold copies straight through.
	ring.Publish(3, 1, pix, []sprite.Placement{{}}, 0, 1)
	c.cfg.BlendThreshold = -1
	flushScreen(c, 3, 1, 1)
	assert.Equal(t, uint16(0xFFFF), rec.fb.At(1, 0))
}

func TestEdgeBlendFollowsScreenOrderWhenMirrored(t *testing.T) {
	// On screen the mirrored row reads black, white, white. Only the black
	// pixel has a hard edge to its right.
	ring := sprite.NewRing()
	ring.Publish(3, 1, []uint16{0xFFFF, 0xFFFF, 0x0000}, []sprite.Placement{{Mirror: true}}, 0, 0)

	rec := newRecorder(3, 1)
	c := New(Options{Config: Config{Width: 3, Height: 1, BlendThreshold: DefaultBlendThreshold}, Panel: rec, Sprites: ring})
	flushScreen(c, 3, 1, 1)

	assert.Equal(t, []uint16{codec.Blend565Half(0x0000, bg), 0xFFFF, 0xFFFF}, rec.fb.Snapshot())
}

func TestLabelMirroring(t *testing.T) {
	rec := newRecorder(4, 2)
	c := New(Options{
		Config: Config{Width: 4, Height: 2, MirrorLabels: true},
		Panel:  rec,
		Labels: &labels{mirror: []panel.Rect{{X0: 0, Y0: 1, X1: 3, Y1: 2}}},
	})
	c.OnFlush(nil, 0, 0, 4, 2, []uint16{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, []uint16{1, 2, 3, 4, 7, 6, 5, 8}, rec.fb.Snapshot())
}

func TestCompositeAllocationFailurePassesTilesThrough(t *testing.T) {
	rec := newRecorder(4, 4)
	heap := memory.NewHeap(memory.Region{Name: "internal", Caps: memory.CapInternal | memory.CapDMA})
	ring := sprite.NewRing()
	ring.Publish(4, 4, fill(16, 0xFFFF), []sprite.Placement{{}}, 0, 0)

	c := New(Options{Config: Config{Width: 4, Height: 4}, Panel: rec, Sprites: ring, Heap: heap})
	assert.Equal(t, 2, flushScreen(c, 4, 4, 2))

	assert.Equal(t, []panel.Rect{{X0: 0, Y0: 0, X1: 4, Y1: 2}, {X0: 0, Y0: 2, X1: 4, Y1: 4}}, rec.draws)
	assert.Equal(t, fill(16, bg), rec.fb.Snapshot())
	assert.Equal(t, uint64(2), c.Stats().CompositeFallbacks)
}

func TestLineBufferFailureFallsBackToFullBlit(t *testing.T) {
	rec := newRecorder(4, 4)
	heap := memory.NewHeap(memory.Region{Name: "spiram", Caps: memory.CapSPIRAM})

	c := New(Options{Config: Config{Width: 4, Height: 4}, Panel: rec, Heap: heap})
	assert.Equal(t, 2, flushScreen(c, 4, 4, 2))
	assert.Equal(t, []panel.Rect{{X0: 0, Y0: 0, X1: 4, Y1: 4}}, rec.draws)
	assert.Equal(t, uint64(1), c.Stats().LineFallbacks)
}

func TestEmptyTileStillAcknowledged(t *testing.T) {
	c := New(Options{Config: Config{Width: 4, Height: 4}})
	acks := 0
	c.OnFlush(func() { acks++ }, 2, 2, 2, 3, nil)
	assert.Equal(t, 1, acks)
}

func BenchmarkComposite(b *testing.B) {
	const w, h = 240, 240
	ring := sprite.NewRing()
	ring.Publish(100, 100, fill(100*100, 0xFFFF),
		[]sprite.Placement{{X: 10, Y: 70}, {X: 130, Y: 70, Mirror: true}}, 0, 0)
	c := New(Options{Config: Config{Width: w, Height: h, BlendThreshold: DefaultBlendThreshold},
		Panel: panel.NewFramebuffer(w, h), Sprites: ring})
	tile := fill(w*24, bg)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for y := 0; y < h; y += 24 {
			c.OnFlush(nil, 0, y, w, y+24, tile)
		}
	}
}
