package aaf

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/logging"
	"github.com/rcarmo/go-emote/internal/memory"
)

// Frame is a decoded source frame in RGB565. It is owned by the Decoder
// that returned it and is overwritten by the next DecodeFrame call.
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
}

// DecoderOptions configures a Decoder. Every field is optional.
type DecoderOptions struct {
	Heap   *memory.Heap
	JPEG   codec.JPEGDecoder
	Logger *logging.Logger
	// MaxPixels caps frame geometry below MaxFramePixels. Zero means
	// MaxFramePixels.
	MaxPixels int
	// OnBlockError is called for each block that fails to decode.
	OnBlockError func(*DecodeError)
}

// DecoderStats counts decoder activity.
type DecoderStats struct {
	Frames      uint64
	Blocks      uint64
	BlockErrors uint64
}

// Decoder turns frame bytes into RGB565 frames. Its buffers are kept and
// grown across calls. A Decoder is not safe for concurrent use.
type Decoder struct {
	heap         *memory.Heap
	jpeg         codec.JPEGDecoder
	log          *logging.Logger
	onBlockError func(*DecodeError)
	maxPixels    int

	huff    codec.HuffmanDecoder
	header  FrameHeader
	palette Palette
	offsets []int
	units   []byte // one block of decoded units
	stage   []byte // Huffman stage output
	frame   Frame

	frames      atomic.Uint64
	blocks      atomic.Uint64
	blockErrors atomic.Uint64
}

// NewDecoder returns a Decoder.
func NewDecoder(opts DecoderOptions) *Decoder {
	d := &Decoder{
		heap:         opts.Heap,
		jpeg:         opts.JPEG,
		log:          opts.Logger,
		onBlockError: opts.OnBlockError,
		maxPixels:    opts.MaxPixels,
	}
	if d.maxPixels <= 0 || d.maxPixels > MaxFramePixels {
		d.maxPixels = MaxFramePixels
	}
	if d.jpeg == nil {
		d.jpeg = codec.StdJPEG{}
	}
	if d.log == nil {
		d.log = logging.Named("aaf")
	}
	return d
}

// Header returns the header of the last frame parsed.
func (d *Decoder) Header() *FrameHeader {
	return &d.header
}

// Palette returns the palette of the last frame decoded.
func (d *Decoder) Palette() *Palette {
	return &d.palette
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		Frames:      d.frames.Load(),
		Blocks:      d.blocks.Load(),
		BlockErrors: d.blockErrors.Load(),
	}
}

// DecodeFrame decodes one frame payload. The returned error is a
// *FormatError or *memory.AllocationError and means no frame was produced.
// Block failures are reported through OnBlockError and leave only that
// block's rows stale.
func (d *Decoder) DecodeFrame(data []byte) (*Frame, error) {
	h := &d.header
	if err := ParseFrameHeaderInto(h, data); err != nil {
		return nil, err
	}
	d.palette.Reset(h.Palette, h.BitDepth.PaletteEntries())

	n := h.Width * h.Height
	if n > d.maxPixels {
		return nil, formatErr(-1, ErrBadHeader, "geometry %dx%d exceeds %d pixels", h.Width, h.Height, d.maxPixels)
	}
	var err error
	if d.frame.Pix, err = d.growPixels(d.frame.Pix, n); err != nil {
		return nil, err
	}
	d.frame.Width, d.frame.Height = h.Width, h.Height

	unitBytes := h.BitDepth.RowBytes(h.Width) * h.BlockHeight
	if d.units, err = d.heap.GrowBytes(d.units, unitBytes, memory.CapDMA); err != nil {
		return nil, err
	}

	d.offsets = h.BlockOffsets(d.offsets)
	for i := 0; i < h.BlockCount; i++ {
		rows := h.BlockRows(i)
		start := h.PixelOffset(i)
		b := block{
			index:   i,
			payload: data[d.offsets[i]:d.offsets[i+1]],
			rows:    rows,
			pix:     d.frame.Pix[start : start+rows*h.Width],
		}
		d.blocks.Add(1)
		if derr := d.decodeBlock(&b); derr != nil {
			d.blockErrors.Add(1)
			d.log.Debug("%v", derr)
			if d.onBlockError != nil {
				d.onBlockError(derr)
			}
		}
	}

	d.frames.Add(1)
	return &d.frame, nil
}

func (d *Decoder) growPixels(buf []uint16, n int) ([]uint16, error) {
	if cap(buf) >= n {
		return buf[:n], nil
	}
	fresh, err := d.heap.Alloc16Preferred(n, memory.CapSPIRAM, memory.CapDefault)
	if err != nil {
		return buf, err
	}
	d.heap.Free16(buf)
	return fresh, nil
}

func (d *Decoder) decodeBlock(b *block) *DecodeError {
	if len(b.payload) == 0 {
		return &DecodeError{Block: b.index, Err: ErrCorruptBlock, Cause: errors.New("empty block")}
	}
	enc := Encoding(b.payload[0])
	if !enc.Valid() {
		return &DecodeError{Block: b.index, Encoding: enc, Err: ErrUnsupportedEncoding}
	}

	direct, err := blockDecoders[enc](d, b)
	if err != nil {
		return &DecodeError{Block: b.index, Encoding: enc, Err: ErrCorruptBlock, Cause: err}
	}
	if !direct {
		d.assemble(b)
	}
	return nil
}

func (d *Decoder) blockUnits(b *block) (units, size int) {
	h := &d.header
	return h.BitDepth.Units(h.Width, b.rows), h.BitDepth.RowBytes(h.Width) * b.rows
}

func (d *Decoder) decodeRLE(b *block) (bool, error) {
	units, size := d.blockUnits(b)
	_, err := codec.RLEDecode(d.header.BitDepth.Unit(), b.payload[1:], d.units[:size], units)
	return false, err
}

func (d *Decoder) decodeHuffmanRLE(b *block) (bool, error) {
	units, size := d.blockUnits(b)
	// An RLE stream never needs more than two bytes per unit plus codes.
	limit := 2*size + 64

	var err error
	if d.stage, err = d.heap.GrowBytes(d.stage, limit, memory.CapDMA); err != nil {
		return false, err
	}
	stream, err := d.huff.Decode(b.payload[1:], d.stage[:0], limit)
	if err != nil {
		return false, err
	}
	_, err = codec.RLEDecode(d.header.BitDepth.Unit(), stream, d.units[:size], units)
	return false, err
}

func (d *Decoder) decodeHuffman(b *block) (bool, error) {
	_, size := d.blockUnits(b)
	out, err := d.huff.Decode(b.payload[1:], d.units[:0], size)
	if err != nil {
		return false, err
	}
	if len(out) != size {
		return false, codec.ErrHuffmanCorrupt
	}
	return false, nil
}

var errJPEGDepth = errors.New("jpeg blocks need 24-bit frames")

func (d *Decoder) decodeJPEG(b *block) (bool, error) {
	if d.header.BitDepth != Depth24 {
		return false, errJPEGDepth
	}
	w, h, err := d.jpeg.DecodeBlock(b.payload[1:], b.pix)
	if err != nil {
		return true, err
	}
	if w != d.header.Width || h != b.rows {
		return true, fmt.Errorf("jpeg block is %dx%d, want %dx%d", w, h, d.header.Width, b.rows)
	}
	return true, nil
}

// assemble converts the block's decoded units into RGB565 pixels.
func (d *Decoder) assemble(b *block) {
	h := &d.header
	w := h.Width
	switch h.BitDepth {
	case Depth24:
		src := d.units
		for i := range b.pix {
			b.pix[i] = uint16(src[2*i]) | uint16(src[2*i+1])<<8
		}
	case Depth8:
		for i, idx := range d.units[:len(b.pix)] {
			b.pix[i] = d.palette.Color(idx)
		}
	case Depth4:
		rowBytes := h.BitDepth.RowBytes(w)
		for y := 0; y < b.rows; y++ {
			src := d.units[y*rowBytes : (y+1)*rowBytes]
			dst := b.pix[y*w : (y+1)*w]
			for x := range dst {
				v := src[x/2]
				if x%2 == 0 {
					v >>= 4
				} else {
					v &= 0x0F
				}
				dst[x] = d.palette.Color(v)
			}
		}
	}
}
