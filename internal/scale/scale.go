// Package scale resamples decoded RGB565 frames to the on-screen sprite
// size.
package scale

import (
	"fmt"
	"strings"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/memory"
)

// Filter selects the resampling kernel.
type Filter int

const (
	Nearest Filter = iota
	Bilinear
)

func (f Filter) String() string {
	if f == Bilinear {
		return "bilinear"
	}
	return "nearest"
}

// ParseFilter accepts "nearest" or "bilinear".
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(s) {
	case "nearest", "":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	}
	return Nearest, fmt.Errorf("scale: unknown filter %q", s)
}

// NearestInto writes src (sw×sh) resampled to dw×dh into dst.
func NearestInto(dst []uint16, dw, dh int, src []uint16, sw, sh int) {
	for dy := 0; dy < dh; dy++ {
		srow := src[(dy*sh/dh)*sw:]
		drow := dst[dy*dw : (dy+1)*dw]
		for dx := range drow {
			drow[dx] = srow[dx*sw/dw]
		}
	}
}

// axis holds the 8.8 fixed-point source position of every target
// coordinate along one axis.
type axis struct {
	i0, i1 []int
	frac   []int
}

func (a *axis) build(src, dst int) {
	a.i0 = resize(a.i0, dst)
	a.i1 = resize(a.i1, dst)
	a.frac = resize(a.frac, dst)
	for d := 0; d < dst; d++ {
		var pos int
		if dst == 1 {
			// Single target sample: nearest.
			pos = 0
		} else {
			pos = d * (src - 1) * 256 / (dst - 1)
		}
		i := pos >> 8
		a.i0[d] = i
		a.frac[d] = pos & 0xFF
		if i+1 < src {
			a.i1[d] = i + 1
		} else {
			a.i1[d] = i
		}
	}
}

func resize(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}

func lerp(a, b, f int) int {
	return a + ((b-a)*f)>>8
}

func blend(p00, p01, p10, p11 uint16, fx, fy int) uint16 {
	r00, g00, b00 := codec.Split565(p00)
	r01, g01, b01 := codec.Split565(p01)
	r10, g10, b10 := codec.Split565(p10)
	r11, g11, b11 := codec.Split565(p11)

	r := lerp(lerp(int(r00), int(r01), fx), lerp(int(r10), int(r11), fx), fy)
	g := lerp(lerp(int(g00), int(g01), fx), lerp(int(g10), int(g11), fx), fy)
	b := lerp(lerp(int(b00), int(b01), fx), lerp(int(b10), int(b11), fx), fy)
	return codec.Join565(r, g, b)
}

// Scaler resamples into a cached output buffer that only grows.
type Scaler struct {
	Filter Filter

	heap *memory.Heap
	out  []uint16
	xs   axis
	ys   axis
}

// NewScaler returns a Scaler allocating its output from heap.
func NewScaler(filter Filter, heap *memory.Heap) *Scaler {
	return &Scaler{Filter: filter, heap: heap}
}

// Scale resamples src to dw×dh. The returned slice is owned by the Scaler
// and overwritten by the next call.
func (s *Scaler) Scale(src []uint16, sw, sh, dw, dh int) ([]uint16, error) {
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 || len(src) < sw*sh {
		return nil, fmt.Errorf("scale: bad geometry %dx%d (%d px) to %dx%d", sw, sh, len(src), dw, dh)
	}
	var err error
	if s.out, err = s.heap.Grow16(s.out, dw*dh, memory.CapDefault); err != nil {
		return nil, err
	}

	if s.Filter == Nearest || (sw == dw && sh == dh) {
		NearestInto(s.out, dw, dh, src, sw, sh)
		return s.out, nil
	}

	s.xs.build(sw, dw)
	s.ys.build(sh, dh)
	for dy := 0; dy < dh; dy++ {
		row0 := src[s.ys.i0[dy]*sw:]
		row1 := src[s.ys.i1[dy]*sw:]
		fy := s.ys.frac[dy]
		drow := s.out[dy*dw : (dy+1)*dw]
		for dx := range drow {
			x0, x1, fx := s.xs.i0[dx], s.xs.i1[dx], s.xs.frac[dx]
			drow[dx] = blend(row0[x0], row0[x1], row1[x0], row1[x1], fx, fy)
		}
	}
	return s.out, nil
}
