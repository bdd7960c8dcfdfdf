package aaf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image/color"

	"github.com/rcarmo/go-emote/internal/codec"
)

var ErrSourceFrame = errors.New("aaf: invalid source frame")

// SourceFrame is an uncompressed frame ready for encoding. Depth24 frames
// use Pix; indexed frames use Index and Palette.
type SourceFrame struct {
	Width   int
	Height  int
	Depth   BitDepth
	Pix     []uint16
	Index   []uint8
	Palette []color.RGBA
}

// EncodeOptions controls block layout and scheme selection.
type EncodeOptions struct {
	// BlockHeight defaults to 16 rows.
	BlockHeight int
	// Encodings lists the candidate schemes; the smallest result wins.
	// Empty means RLE, Huffman+RLE and Huffman.
	Encodings []Encoding
	// JPEGQuality is used when EncodingJPEG is a candidate.
	JPEGQuality int
}

// DefaultBlockHeight is the block height used when none is given.
const DefaultBlockHeight = 16

var defaultEncodings = []Encoding{EncodingRLE, EncodingHuffmanRLE, EncodingHuffman}

func (s *SourceFrame) validate() error {
	if !s.Depth.Valid() {
		return fmt.Errorf("%w: depth %d", ErrSourceFrame, s.Depth)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Width > 0xFFFF || s.Height > 0xFFFF {
		return fmt.Errorf("%w: size %dx%d", ErrSourceFrame, s.Width, s.Height)
	}
	n := s.Width * s.Height
	if n > MaxFramePixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrSourceFrame, s.Width, s.Height, MaxFramePixels)
	}
	if s.Depth == Depth24 {
		if len(s.Pix) < n {
			return fmt.Errorf("%w: %d pixels for %dx%d", ErrSourceFrame, len(s.Pix), s.Width, s.Height)
		}
		return nil
	}
	if len(s.Index) < n {
		return fmt.Errorf("%w: %d indices for %dx%d", ErrSourceFrame, len(s.Index), s.Width, s.Height)
	}
	if len(s.Palette) > s.Depth.PaletteEntries() {
		return fmt.Errorf("%w: %d palette entries at depth %d", ErrSourceFrame, len(s.Palette), s.Depth)
	}
	limit := uint8(s.Depth.PaletteEntries() - 1)
	for _, idx := range s.Index[:n] {
		if idx > limit {
			return fmt.Errorf("%w: index %d out of range", ErrSourceFrame, idx)
		}
	}
	return nil
}

// units packs rows [y0, y0+rows) in decoded block layout.
func (s *SourceFrame) units(y0, rows int) []byte {
	rowBytes := s.Depth.RowBytes(s.Width)
	out := make([]byte, rowBytes*rows)
	for y := 0; y < rows; y++ {
		row := out[y*rowBytes : (y+1)*rowBytes]
		base := (y0 + y) * s.Width
		switch s.Depth {
		case Depth24:
			for x := 0; x < s.Width; x++ {
				binary.LittleEndian.PutUint16(row[2*x:], s.Pix[base+x])
			}
		case Depth8:
			copy(row, s.Index[base:base+s.Width])
		case Depth4:
			for x := 0; x < s.Width; x++ {
				v := s.Index[base+x] & 0x0F
				if x%2 == 0 {
					row[x/2] |= v << 4
				} else {
					row[x/2] |= v
				}
			}
		}
	}
	return out
}

// Encoder builds frame payloads. It is not safe for concurrent use.
type Encoder struct {
	huff codec.HuffmanEncoder
}

// EncodeFrame returns the frame payload for src.
func (e *Encoder) EncodeFrame(src SourceFrame, opts EncodeOptions) ([]byte, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	bh := opts.BlockHeight
	if bh <= 0 {
		bh = DefaultBlockHeight
	}
	if bh > src.Height {
		bh = src.Height
	}
	candidates := opts.Encodings
	if len(candidates) == 0 {
		candidates = defaultEncodings
	}
	for _, enc := range candidates {
		if !enc.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedEncoding, uint8(enc))
		}
		if enc == EncodingJPEG && src.Depth != Depth24 {
			return nil, fmt.Errorf("%w: jpeg needs depth 24", ErrSourceFrame)
		}
	}

	count := (src.Height + bh - 1) / bh
	blocks := make([][]byte, count)
	for i := range blocks {
		rows := bh
		if i == count-1 {
			rows = src.Height - i*bh
		}
		blk, err := e.encodeBlock(&src, i*bh, rows, candidates, opts.JPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		blocks[i] = blk
	}

	out := make([]byte, 0, frameFixedHeader+4*count+src.Depth.PaletteEntries()*paletteEntrySize)
	out = append(out, frameSignature...)
	out = append(out, "1.0.0\x00"...)
	out = append(out, byte(src.Depth))
	out = binary.LittleEndian.AppendUint16(out, uint16(src.Width))  // #nosec G115
	out = binary.LittleEndian.AppendUint16(out, uint16(src.Height)) // #nosec G115
	out = binary.LittleEndian.AppendUint16(out, uint16(count))      // #nosec G115
	out = binary.LittleEndian.AppendUint16(out, uint16(bh))         // #nosec G115
	for _, blk := range blocks {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(blk))) // #nosec G115
	}
	for i := 0; i < src.Depth.PaletteEntries(); i++ {
		var c color.RGBA
		if i < len(src.Palette) {
			c = src.Palette[i]
		}
		out = append(out, c.B, c.G, c.R, c.A)
	}
	for _, blk := range blocks {
		out = append(out, blk...)
	}
	return out, nil
}

func (e *Encoder) encodeBlock(src *SourceFrame, y0, rows int, candidates []Encoding, quality int) ([]byte, error) {
	units := src.units(y0, rows)
	count := src.Depth.Units(src.Width, rows)
	unit := src.Depth.Unit()

	var best []byte
	var rle []byte
	for _, enc := range candidates {
		out := []byte{byte(enc)}
		switch enc {
		case EncodingRLE:
			if rle == nil {
				rle = codec.RLEEncode(unit, units, count)
			}
			out = append(out, rle...)
		case EncodingHuffmanRLE:
			if rle == nil {
				rle = codec.RLEEncode(unit, units, count)
			}
			out = e.huff.Encode(out, rle)
		case EncodingHuffman:
			out = e.huff.Encode(out, units)
		case EncodingJPEG:
			if quality <= 0 {
				quality = 90
			}
			jpg, err := codec.EncodeJPEGBlock(src.Pix[y0*src.Width:], src.Width, rows, quality)
			if err != nil {
				return nil, err
			}
			out = append(out, jpg...)
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	return best, nil
}

// EncodeAsset wraps frame payloads into an asset container.
func EncodeAsset(frames [][]byte) []byte {
	var data []byte
	table := make([]byte, 0, len(frames)*tableEntrySize)
	for _, f := range frames {
		table = binary.LittleEndian.AppendUint32(table, uint32(len(f)+2)) // #nosec G115
		table = binary.LittleEndian.AppendUint32(table, uint32(len(data))) // #nosec G115
		data = binary.BigEndian.AppendUint16(data, FramePrefix)
		data = append(data, f...)
	}

	out := make([]byte, 0, assetHeaderSize+len(table)+len(data))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(frames))) // #nosec G115
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(data))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(table))) // #nosec G115
	out = append(out, table...)
	return append(out, data...)
}
