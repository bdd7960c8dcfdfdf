package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func TestRectIntersect(t *testing.T) {
	screen := R(0, 0, 10, 8)
	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"inside", R(2, 2, 3, 3), R(2, 2, 3, 3)},
		{"negative origin", R(-4, -2, 6, 5), Rect{0, 0, 2, 3}},
		{"past edge", R(8, 6, 5, 5), Rect{8, 6, 10, 8}},
		{"disjoint", R(20, 20, 2, 2), Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Intersect(screen))
		})
	}
	assert.True(t, Rect{}.Empty())
	assert.True(t, R(1, 1, 2, 2).Contains(2, 2))
	assert.False(t, R(1, 1, 2, 2).Contains(3, 1))
}

func TestFramebufferDraw(t *testing.T) {
	fb := NewFramebuffer(4, 2)
	var frames [][]uint16
	fb.OnFrame = func(pix []uint16, w, h int) { frames = append(frames, pix) }

	require.NoError(t, fb.DrawBitmap(0, 0, 4, 1, []uint16{1, 2, 3, 4}))
	assert.Empty(t, frames)
	require.NoError(t, fb.DrawBitmap(1, 1, 4, 2, []uint16{7, 8, 9}))
	require.Len(t, frames, 1)
	assert.Equal(t, []uint16{1, 2, 3, 4, 0, 7, 8, 9}, frames[0])
	assert.Equal(t, uint16(8), fb.At(2, 1))

	err := fb.DrawBitmap(3, 0, 5, 1, []uint16{1, 2})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, FramebufferStats{Draws: 2, Frames: 1, OutOfBounds: 1}, fb.Stats())
}

type failingPanel struct{}

func (failingPanel) DrawBitmap(int, int, int, int, []uint16) error { return errors.New("bus") }

func TestMultiDrawsAll(t *testing.T) {
	a, b := NewFramebuffer(1, 1), NewFramebuffer(1, 1)
	err := Multi{a, failingPanel{}, b}.DrawBitmap(0, 0, 1, 1, []uint16{5})
	assert.Error(t, err)
	assert.Equal(t, uint16(5), a.At(0, 0))
	assert.Equal(t, uint16(5), b.At(0, 0))
}

type busEvent struct {
	dc   gpio.Level
	data []byte
}

type fakeBus struct {
	level  gpio.Level
	events []busEvent
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.events = append(b.events, busEvent{dc: b.level, data: append([]byte(nil), w...)})
	return nil
}

type fakePin struct {
	bus    *fakeBus
	levels []gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	if p.bus != nil {
		p.bus.level = l
	}
	return nil
}

func TestSPIInitSequence(t *testing.T) {
	bus := &fakeBus{}
	dc := &fakePin{bus: bus}
	rst := &fakePin{}
	s := NewSPI(bus, dc, rst, SPIConfig{Width: 4, Height: 4, MemAccess: 0xC0})
	var slept time.Duration
	s.sleep = func(d time.Duration) { slept += d }

	require.NoError(t, s.Init())
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, rst.levels)
	assert.Positive(t, slept)

	var cmds []byte
	for _, e := range bus.events {
		if e.dc == gpio.Low {
			cmds = append(cmds, e.data[0])
		}
	}
	assert.Equal(t, []byte{cmdSoftReset, cmdSleepOut, cmdPixelFormat, cmdMemAccess, cmdDisplayOn}, cmds)
}

func TestSPIDrawBitmap(t *testing.T) {
	bus := &fakeBus{}
	s := NewSPI(bus, &fakePin{bus: bus}, nil, SPIConfig{Width: 8, Height: 8, XOffset: 2, ChunkSize: 4})

	require.NoError(t, s.DrawBitmap(1, 3, 4, 4, []uint16{0x1234, 0x5678, 0x9ABC}))

	want := []busEvent{
		{gpio.Low, []byte{cmdColumnAddr}},
		{gpio.High, []byte{0, 3, 0, 5}},
		{gpio.Low, []byte{cmdRowAddr}},
		{gpio.High, []byte{0, 3, 0, 3}},
		{gpio.Low, []byte{cmdMemoryWrite}},
		{gpio.High, []byte{0x12, 0x34, 0x56, 0x78}},
		{gpio.High, []byte{0x9A, 0xBC}},
	}
	assert.Equal(t, want, bus.events)

	assert.ErrorIs(t, s.DrawBitmap(0, 0, 9, 1, make([]uint16, 9)), ErrOutOfBounds)
}

func TestSPISwapBytes(t *testing.T) {
	bus := &fakeBus{}
	s := NewSPI(bus, &fakePin{bus: bus}, nil, SPIConfig{Width: 1, Height: 1, SwapBytes: true})
	require.NoError(t, s.DrawBitmap(0, 0, 1, 1, []uint16{0x1234}))
	assert.Equal(t, []byte{0x34, 0x12}, bus.events[len(bus.events)-1].data)
}
