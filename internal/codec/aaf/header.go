// Package aaf implements the AAF animation container: asset and frame
// header parsing, per-block decoding, palette resolution, frame assembly
// and the matching encoder used by the packing tool.
package aaf

import (
	"bytes"
	"encoding/binary"

	"github.com/rcarmo/go-emote/internal/codec"
)

// BitDepth is the stored pixel depth of a frame.
type BitDepth uint8

const (
	Depth4  BitDepth = 4
	Depth8  BitDepth = 8
	Depth24 BitDepth = 24 // RGB565 pairs
)

// Valid reports whether d is a supported depth.
func (d BitDepth) Valid() bool {
	return d == Depth4 || d == Depth8 || d == Depth24
}

// PaletteEntries returns 16, 256 or 0.
func (d BitDepth) PaletteEntries() int {
	switch d {
	case Depth4:
		return 16
	case Depth8:
		return 256
	}
	return 0
}

// Unit returns the run-length unit used at this depth.
func (d BitDepth) Unit() codec.Unit {
	switch d {
	case Depth4:
		return codec.UnitNibble
	case Depth24:
		return codec.UnitPixel16
	}
	return codec.UnitByte
}

// RowBytes returns the decoded size of one row.
func (d BitDepth) RowBytes(width int) int {
	switch d {
	case Depth4:
		return (width + 1) / 2
	case Depth24:
		return width * 2
	}
	return width
}

// Units returns the run-length unit count of rows decoded rows. Nibble rows
// include their padding nibble.
func (d BitDepth) Units(width, rows int) int {
	if d == Depth4 {
		return d.RowBytes(width) * rows * 2
	}
	return width * rows
}

var frameSignature = []byte("_S\x00")

const (
	// FramePrefix marks the start of every frame inside an asset.
	FramePrefix = 0x5A5A

	frameVersionLen  = 6
	frameFixedHeader = 3 + frameVersionLen + 1 + 2 + 2 + 2 + 2
	paletteEntrySize = 4
)

// MaxFramePixels bounds Width×Height of any frame. Headers claiming more
// are rejected before a decoder sizes buffers from them.
const MaxFramePixels = 1 << 20

// FrameHeader describes one frame's geometry and block layout.
type FrameHeader struct {
	Width       int
	Height      int
	BlockCount  int
	BlockHeight int
	BitDepth    BitDepth
	Version     string
	BlockLen    []uint32
	// Palette holds the raw B,G,R,A entries.
	Palette []byte
	// DataOffset is where the first block starts within the frame bytes.
	DataOffset int
}

// ParseFrameHeader parses the header at the start of data.
func ParseFrameHeader(data []byte) (*FrameHeader, error) {
	h := &FrameHeader{}
	if err := ParseFrameHeaderInto(h, data); err != nil {
		return nil, err
	}
	return h, nil
}

// ParseFrameHeaderInto parses into h, reusing its block length storage.
// The returned error is a *FormatError with Frame -1; callers that know the
// frame index may set it.
func ParseFrameHeaderInto(h *FrameHeader, data []byte) error {
	if len(data) < frameFixedHeader {
		return formatErr(-1, ErrTruncated, "header needs %d bytes, have %d", frameFixedHeader, len(data))
	}
	if !bytes.Equal(data[:3], frameSignature) {
		return formatErr(-1, ErrBadMagic, "signature % x", data[:3])
	}

	version := data[3 : 3+frameVersionLen]
	if i := bytes.IndexByte(version, 0); i >= 0 {
		version = version[:i]
	}
	h.Version = string(version)

	off := 3 + frameVersionLen
	h.BitDepth = BitDepth(data[off])
	h.Width = int(binary.LittleEndian.Uint16(data[off+1:]))
	h.Height = int(binary.LittleEndian.Uint16(data[off+3:]))
	h.BlockCount = int(binary.LittleEndian.Uint16(data[off+5:]))
	h.BlockHeight = int(binary.LittleEndian.Uint16(data[off+7:]))
	off = frameFixedHeader

	if !h.BitDepth.Valid() {
		return formatErr(-1, ErrBadHeader, "bit depth %d", h.BitDepth)
	}
	if h.Width == 0 || h.Height == 0 || h.BlockHeight == 0 {
		return formatErr(-1, ErrBadHeader, "geometry %dx%d block height %d", h.Width, h.Height, h.BlockHeight)
	}
	if n := h.Width * h.Height; n > MaxFramePixels {
		return formatErr(-1, ErrBadHeader, "geometry %dx%d exceeds %d pixels", h.Width, h.Height, MaxFramePixels)
	}
	if want := (h.Height + h.BlockHeight - 1) / h.BlockHeight; h.BlockCount != want {
		return formatErr(-1, ErrBadHeader, "block count %d, height %d needs %d", h.BlockCount, h.Height, want)
	}

	if len(data) < off+4*h.BlockCount {
		return formatErr(-1, ErrTruncated, "block table")
	}
	if cap(h.BlockLen) < h.BlockCount {
		h.BlockLen = make([]uint32, h.BlockCount)
	}
	h.BlockLen = h.BlockLen[:h.BlockCount]
	for i := range h.BlockLen {
		h.BlockLen[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	paletteLen := h.BitDepth.PaletteEntries() * paletteEntrySize
	if len(data) < off+paletteLen {
		return formatErr(-1, ErrTruncated, "palette")
	}
	h.Palette = data[off : off+paletteLen]
	off += paletteLen
	h.DataOffset = off

	total := uint64(0)
	for _, n := range h.BlockLen {
		total += uint64(n)
	}
	if uint64(len(data)-off) < total {
		return formatErr(-1, ErrTruncated, "blocks need %d bytes, have %d", total, len(data)-off)
	}
	return nil
}

// BlockRows returns the row count of block i. Only the last block may be
// shorter than BlockHeight.
func (h *FrameHeader) BlockRows(i int) int {
	if i < 0 || i >= h.BlockCount {
		return 0
	}
	if i == h.BlockCount-1 {
		return h.Height - (h.BlockCount-1)*h.BlockHeight
	}
	return h.BlockHeight
}

// BlockOffsets appends the start offset of every block within the frame
// bytes, plus the end offset of the last one, to dst.
func (h *FrameHeader) BlockOffsets(dst []int) []int {
	off := h.DataOffset
	dst = append(dst[:0], off)
	for _, n := range h.BlockLen {
		off += int(n)
		dst = append(dst, off)
	}
	return dst
}

// PixelOffset returns the index of block i's first pixel in a
// Width×Height buffer.
func (h *FrameHeader) PixelOffset(i int) int {
	return i * h.BlockHeight * h.Width
}
