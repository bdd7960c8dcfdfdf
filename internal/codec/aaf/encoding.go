package aaf

import "fmt"

// Encoding is the per-block entropy scheme, stored as the block's tag byte.
type Encoding uint8

const (
	EncodingRLE        Encoding = 0
	EncodingHuffmanRLE Encoding = 1
	EncodingJPEG       Encoding = 2
	EncodingHuffman    Encoding = 3
)

var encodingNames = [...]string{
	EncodingRLE:        "rle",
	EncodingHuffmanRLE: "huffman+rle",
	EncodingJPEG:       "jpeg",
	EncodingHuffman:    "huffman",
}

func (e Encoding) String() string {
	if e.Valid() {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// Valid reports whether e has a decoder.
func (e Encoding) Valid() bool {
	return e <= EncodingHuffman
}

// ParseEncoding maps a name back to its Encoding.
func ParseEncoding(name string) (Encoding, error) {
	for i, n := range encodingNames {
		if n == name {
			return Encoding(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// block is one block's decode job.
type block struct {
	index   int
	payload []byte
	rows    int
	// pix is the block's slice of the destination frame.
	pix []uint16
}

// blockDecodeFunc decodes b. It reports direct when the pixels were written
// straight into b.pix and need no assembly.
type blockDecodeFunc func(d *Decoder, b *block) (direct bool, err error)

var blockDecoders = [...]blockDecodeFunc{
	EncodingRLE:        (*Decoder).decodeRLE,
	EncodingHuffmanRLE: (*Decoder).decodeHuffmanRLE,
	EncodingJPEG:       (*Decoder).decodeJPEG,
	EncodingHuffman:    (*Decoder).decodeHuffman,
}
