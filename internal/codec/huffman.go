package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/huff0"
)

var (
	ErrHuffmanHeader  = errors.New("huffman: truncated stage header")
	ErrHuffmanMode    = errors.New("huffman: unknown stage mode")
	ErrHuffmanLength  = errors.New("huffman: declared length exceeds limit")
	ErrHuffmanCorrupt = errors.New("huffman: corrupt stream")
)

// HuffmanMode selects how the Huffman stage body is stored.
type HuffmanMode uint8

const (
	// HuffmanTable is a huff0 1X stream preceded by its table.
	HuffmanTable HuffmanMode = iota
	// HuffmanFill repeats a single byte.
	HuffmanFill
	// HuffmanStored holds the bytes verbatim.
	HuffmanStored
)

// HuffmanHeaderSize is the mode byte plus the u32 decoded length.
const HuffmanHeaderSize = 5

func (m HuffmanMode) String() string {
	switch m {
	case HuffmanTable:
		return "table"
	case HuffmanFill:
		return "fill"
	case HuffmanStored:
		return "stored"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// HuffmanDecoder expands Huffman stage bodies. It keeps its table scratch
// between calls and is not safe for concurrent use.
type HuffmanDecoder struct {
	scratch *huff0.Scratch
}

// Decode expands the stage in src into buf's storage, growing it when
// needed, and returns the decoded bytes. limit bounds the declared length.
func (d *HuffmanDecoder) Decode(src, buf []byte, limit int) ([]byte, error) {
	if len(src) < HuffmanHeaderSize {
		return buf[:0], ErrHuffmanHeader
	}
	mode := HuffmanMode(src[0])
	length := int(binary.LittleEndian.Uint32(src[1:5]))
	body := src[HuffmanHeaderSize:]
	if length < 0 || length > limit {
		return buf[:0], fmt.Errorf("%w: %d > %d", ErrHuffmanLength, length, limit)
	}
	if cap(buf) < length {
		buf = make([]byte, 0, length)
	}

	switch mode {
	case HuffmanFill:
		if len(body) < 1 {
			return buf[:0], ErrHuffmanCorrupt
		}
		out := buf[:length]
		for i := range out {
			out[i] = body[0]
		}
		return out, nil

	case HuffmanStored:
		if len(body) < length {
			return buf[:0], ErrHuffmanCorrupt
		}
		out := buf[:length]
		copy(out, body)
		return out, nil

	case HuffmanTable:
		s, remain, err := huff0.ReadTable(body, d.scratch)
		if err != nil {
			return buf[:0], fmt.Errorf("%w: %v", ErrHuffmanCorrupt, err)
		}
		d.scratch = s
		out, err := s.Decoder().Decompress1X(buf[:0:length], remain)
		if err != nil {
			return buf[:0], fmt.Errorf("%w: %v", ErrHuffmanCorrupt, err)
		}
		if len(out) != length {
			return out, fmt.Errorf("%w: decoded %d of %d bytes", ErrHuffmanCorrupt, len(out), length)
		}
		return out, nil
	}

	return buf[:0], fmt.Errorf("%w: %d", ErrHuffmanMode, uint8(mode))
}

// HuffmanEncoder produces Huffman stage bodies for the frame encoder.
type HuffmanEncoder struct {
	scratch huff0.Scratch
}

// Encode appends a complete stage (header and body) for in to dst.
func (e *HuffmanEncoder) Encode(dst, in []byte) []byte {
	if isFill(in) {
		return append(appendHuffmanHeader(dst, HuffmanFill, len(in)), in[0])
	}

	e.scratch.Reuse = huff0.ReusePolicyNone
	comp, _, err := huff0.Compress1X(in, &e.scratch)
	if err == nil && len(comp) < len(in) {
		dst = appendHuffmanHeader(dst, HuffmanTable, len(in))
		return append(dst, comp...)
	}

	// ErrUseRLE is covered by isFill; ErrIncompressible and anything else
	// fall back to storing.
	if err != nil && errors.Is(err, huff0.ErrUseRLE) && len(in) > 0 {
		return append(appendHuffmanHeader(dst, HuffmanFill, len(in)), in[0])
	}
	dst = appendHuffmanHeader(dst, HuffmanStored, len(in))
	return append(dst, in...)
}

func appendHuffmanHeader(dst []byte, mode HuffmanMode, length int) []byte {
	var hdr [HuffmanHeaderSize]byte
	hdr[0] = byte(mode)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(length)) // #nosec G115
	return append(dst, hdr[:]...)
}

func isFill(in []byte) bool {
	if len(in) == 0 {
		return false
	}
	for _, b := range in[1:] {
		if b != in[0] {
			return false
		}
	}
	return true
}
