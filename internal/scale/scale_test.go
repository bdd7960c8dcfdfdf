package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-emote/internal/codec"
)

func ramp(w, h int) []uint16 {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = uint16(i * 37)
	}
	return pix
}

func TestIdentityScale(t *testing.T) {
	for _, f := range []Filter{Nearest, Bilinear} {
		t.Run(f.String(), func(t *testing.T) {
			src := ramp(9, 7)
			out, err := NewScaler(f, nil).Scale(src, 9, 7, 9, 7)
			require.NoError(t, err)
			assert.Equal(t, src, out)
		})
	}
}

func TestNearestDownscale(t *testing.T) {
	src := ramp(4, 4)
	out, err := NewScaler(Nearest, nil).Scale(src, 4, 4, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{src[0], src[2], src[8], src[10]}, out)
}

func TestNearestUpscale(t *testing.T) {
	src := []uint16{1, 2}
	out, err := NewScaler(Nearest, nil).Scale(src, 2, 1, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 1, 2, 2, 1, 1, 2, 2}, out)
}

func TestBilinearMidpoint(t *testing.T) {
	src := []uint16{0x0000, 0xFFFF}
	out, err := NewScaler(Bilinear, nil).Scale(src, 2, 1, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0000), out[0])
	assert.Equal(t, codec.Join565(15, 31, 15), out[1])
	assert.Equal(t, uint16(0xFFFF), out[2])
}

func TestBilinearConstantAndCorners(t *testing.T) {
	flat := make([]uint16, 6*5)
	for i := range flat {
		flat[i] = 0x7BEF
	}
	out, err := NewScaler(Bilinear, nil).Scale(flat, 6, 5, 17, 11)
	require.NoError(t, err)
	for _, p := range out {
		require.Equal(t, uint16(0x7BEF), p)
	}

	src := ramp(5, 5)
	out, err = NewScaler(Bilinear, nil).Scale(src, 5, 5, 9, 9)
	require.NoError(t, err)
	assert.Equal(t, src[0], out[0])
	assert.Equal(t, src[24], out[80])
}

func TestBilinearSingleTargetAxis(t *testing.T) {
	src := ramp(4, 3)
	out, err := NewScaler(Bilinear, nil).Scale(src, 4, 3, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{src[0]}, out)

	out, err = NewScaler(Bilinear, nil).Scale(src, 4, 3, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{src[0], src[4], src[8]}, out)
}

func TestScalerCachesOutput(t *testing.T) {
	s := NewScaler(Nearest, nil)
	src := ramp(8, 8)

	a, err := s.Scale(src, 8, 8, 6, 6)
	require.NoError(t, err)
	first := &a[0]

	b, err := s.Scale(src, 8, 8, 4, 4)
	require.NoError(t, err)
	assert.Same(t, first, &b[0])
	assert.Len(t, b, 16)

	c, err := s.Scale(src, 8, 8, 10, 10)
	require.NoError(t, err)
	assert.Len(t, c, 100)
}

func TestScaleRejectsBadGeometry(t *testing.T) {
	_, err := NewScaler(Nearest, nil).Scale(make([]uint16, 3), 2, 2, 4, 4)
	assert.Error(t, err)
	_, err = NewScaler(Nearest, nil).Scale(make([]uint16, 4), 2, 2, 0, 4)
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"nearest", Nearest, false},
		{"BILINEAR", Bilinear, false},
		{"", Nearest, false},
		{"cubic", Nearest, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func BenchmarkBilinear(b *testing.B) {
	src := ramp(160, 160)
	s := NewScaler(Bilinear, nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = s.Scale(src, 160, 160, 100, 100)
	}
}
