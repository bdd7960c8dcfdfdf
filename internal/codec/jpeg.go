package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
)

var ErrJPEGTooLarge = errors.New("jpeg: decoded block exceeds destination")

// JPEGDecoder decodes one baseline JPEG block into RGB565 pixels and
// reports the decoded geometry. Implementations must not write beyond dst.
type JPEGDecoder interface {
	DecodeBlock(src []byte, dst []uint16) (width, height int, err error)
}

// StdJPEG decodes blocks with image/jpeg.
type StdJPEG struct{}

// DecodeBlock implements JPEGDecoder.
func (StdJPEG) DecodeBlock(src []byte, dst []uint16) (int, int, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h > len(dst) {
		return w, h, ErrJPEGTooLarge
	}

	switch m := img.(type) {
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			row := dst[y*w : (y+1)*w]
			for x := range row {
				yi := m.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := m.COffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				row[x] = Pack565(r, g, bl)
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := dst[y*w : (y+1)*w]
			for x := range row {
				v := m.Pix[m.PixOffset(b.Min.X+x, b.Min.Y+y)]
				row[x] = Pack565(v, v, v)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
				dst[y*w+x] = Pack565(c.R, c.G, c.B)
			}
		}
	}
	return w, h, nil
}

// EncodeJPEGBlock compresses a width×height RGB565 block as baseline JPEG.
func EncodeJPEGBlock(pix []uint16, width, height, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	RGB565ToRGBA(pix[:width*height], img.Pix)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
