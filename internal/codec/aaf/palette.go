package aaf

import "github.com/rcarmo/go-emote/internal/codec"

// Palette resolves indexed colours lazily. An entry is converted from the
// frame's raw BGRA table the first time it is referenced and cached until
// the next Reset. Resolution state is a separate flag per entry, so every
// 16-bit colour is representable.
type Palette struct {
	raw    []byte
	n      int
	colors [256]uint16
	valid  [256]bool
}

// Reset points the palette at a new frame's raw table of n entries.
func (p *Palette) Reset(raw []byte, n int) {
	if n > len(p.colors) {
		n = len(p.colors)
	}
	if max := len(raw) / paletteEntrySize; n > max {
		n = max
	}
	p.raw = raw
	p.n = n
	p.valid = [256]bool{}
}

// Len returns the number of entries.
func (p *Palette) Len() int {
	return p.n
}

// Color returns entry i, resolving it on first use. Indices beyond the
// table are black.
func (p *Palette) Color(i uint8) uint16 {
	if p.valid[i] {
		return p.colors[i]
	}
	if int(i) >= p.n {
		return 0
	}
	off := int(i) * paletteEntrySize
	c := codec.BGRAToRGB565(p.raw[off : off+paletteEntrySize])
	p.colors[i] = c
	p.valid[i] = true
	return c
}

// Resolved reports whether entry i has been resolved since the last Reset.
func (p *Palette) Resolved(i uint8) bool {
	return p.valid[i]
}
