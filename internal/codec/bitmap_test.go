package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack565(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    uint16
	}{
		{"black", 0, 0, 0, 0x0000},
		{"white", 255, 255, 255, 0xFFFF},
		{"red", 255, 0, 0, 0xF800},
		{"green", 0, 255, 0, 0x07E0},
		{"blue", 0, 0, 255, 0x001F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pack565(tt.r, tt.g, tt.b)
			assert.Equal(t, tt.want, p)
			r, g, b := Expand565(p)
			assert.Equal(t, [3]uint8{tt.r, tt.g, tt.b}, [3]uint8{r, g, b})
		})
	}
}

func TestBGRAToRGB565(t *testing.T) {
	assert.Equal(t, uint16(0xF800), BGRAToRGB565([]byte{0, 0, 255, 255}))
	assert.Equal(t, uint16(0x001F), BGRAToRGB565([]byte{255, 0, 0, 0}))
	assert.Zero(t, BGRAToRGB565([]byte{1}))
}

func TestJoin565Clamps(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), Join565(40, 70, 99))
	assert.Equal(t, uint16(0x0000), Join565(-1, -5, -9))
}

func TestBlend565Half(t *testing.T) {
	assert.Equal(t, uint16(0x0000), Blend565Half(0x0000, 0x0000))
	assert.Equal(t, uint16(0xFFFF), Blend565Half(0xFFFF, 0xFFFF))
	// 31/2, 63/2, 31/2
	assert.Equal(t, uint16(15<<11|31<<5|15), Blend565Half(0xFFFF, 0x0000))
}

func TestDiff565(t *testing.T) {
	assert.Zero(t, Diff565(0x1234, 0x1234))
	assert.Equal(t, 765, Diff565(0xFFFF, 0x0000))
	assert.Equal(t, 255, Diff565(0xF800, 0x0000))
}

func TestReverseRow(t *testing.T) {
	row := []uint16{1, 2, 3, 4, 5}
	ReverseRow(row)
	assert.Equal(t, []uint16{5, 4, 3, 2, 1}, row)

	even := []uint16{1, 2}
	ReverseRow(even)
	assert.Equal(t, []uint16{2, 1}, even)
}

func TestPutPixels(t *testing.T) {
	dst := make([]byte, 4)
	n := PutPixels(dst, []uint16{0x1234, 0xABCD}, false)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x34, 0x12, 0xCD, 0xAB}, dst)

	n = PutPixels(dst, []uint16{0x1234, 0xABCD, 0x0001}, true)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x12, 0x34, 0xAB, 0xCD}, dst)
}

func TestRGBAConversions(t *testing.T) {
	pix := []uint16{0xF800, 0x07E0, 0x001F}
	rgba := make([]byte, 12)
	RGB565ToRGBA(pix, rgba)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 255, 0, 255, 0, 0, 255, 255}, rgba)

	back := make([]uint16, 3)
	RGBAToRGB565(rgba, back)
	assert.Equal(t, pix, back)
}

func TestJPEGBlockRoundTrip(t *testing.T) {
	const w, h = 16, 8
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = Pack565(200, 40, 40)
	}

	enc, err := EncodeJPEGBlock(pix, w, h, 95)
	require.NoError(t, err)

	dst := make([]uint16, w*h)
	gw, gh, err := StdJPEG{}.DecodeBlock(enc, dst)
	require.NoError(t, err)
	assert.Equal(t, w, gw)
	assert.Equal(t, h, gh)

	// Lossy: compare with tolerance.
	r, g, b := Expand565(dst[w*h/2])
	assert.InDelta(t, 200, int(r), 12)
	assert.InDelta(t, 40, int(g), 12)
	assert.InDelta(t, 40, int(b), 12)

	_, _, err = StdJPEG{}.DecodeBlock(enc, make([]uint16, 4))
	assert.ErrorIs(t, err, ErrJPEGTooLarge)

	_, _, err = StdJPEG{}.DecodeBlock([]byte{1, 2, 3}, dst)
	assert.Error(t, err)
}
