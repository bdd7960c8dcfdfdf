package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuffmanRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	skewed := make([]byte, 4096)
	for i := range skewed {
		// Mostly small indices, like a palette frame.
		skewed[i] = byte(rng.Intn(4))
		if rng.Intn(20) == 0 {
			skewed[i] = byte(rng.Intn(256))
		}
	}
	noise := make([]byte, 512)
	rng.Read(noise)

	tests := []struct {
		name string
		in   []byte
		mode HuffmanMode
	}{
		{"skewed", skewed, HuffmanTable},
		{"fill", bytes.Repeat([]byte{9}, 300), HuffmanFill},
		{"noise", noise, HuffmanStored},
		{"empty", nil, HuffmanStored},
	}

	var enc HuffmanEncoder
	var dec HuffmanDecoder
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := enc.Encode(nil, tt.in)
			assert.Equal(t, tt.mode, HuffmanMode(stage[0]))

			out, err := dec.Decode(stage, nil, len(tt.in))
			require.NoError(t, err)
			assert.Equal(t, len(tt.in), len(out))
			if len(tt.in) > 0 {
				assert.Equal(t, tt.in, out)
			}
		})
	}
}

func TestHuffmanDecode_ReusesBuffer(t *testing.T) {
	var enc HuffmanEncoder
	var dec HuffmanDecoder
	stage := enc.Encode(nil, bytes.Repeat([]byte{1, 2, 3, 1, 1, 1}, 100))

	buf := make([]byte, 0, 1024)
	out, err := dec.Decode(stage, buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, &buf[:1][0], &out[:1][0])
}

func TestHuffmanDecode_Errors(t *testing.T) {
	var dec HuffmanDecoder

	_, err := dec.Decode([]byte{0, 1}, nil, 10)
	assert.ErrorIs(t, err, ErrHuffmanHeader)

	_, err = dec.Decode([]byte{7, 1, 0, 0, 0, 0}, nil, 10)
	assert.ErrorIs(t, err, ErrHuffmanMode)

	_, err = dec.Decode([]byte{byte(HuffmanStored), 100, 0, 0, 0}, nil, 10)
	assert.ErrorIs(t, err, ErrHuffmanLength)

	_, err = dec.Decode([]byte{byte(HuffmanStored), 4, 0, 0, 0, 1}, nil, 10)
	assert.ErrorIs(t, err, ErrHuffmanCorrupt)

	_, err = dec.Decode([]byte{byte(HuffmanTable), 4, 0, 0, 0, 0xFF, 0xFF}, nil, 10)
	assert.ErrorIs(t, err, ErrHuffmanCorrupt)
}
