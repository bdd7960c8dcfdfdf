// Package codec holds the pixel helpers and entropy stages shared by the AAF
// animation decoder: RGB565 packing, the AAF run-length scheme, the Huffman
// stage and the JPEG block hook.
package codec

// Pack565 packs 8-bit channels into an RGB565 pixel.
func Pack565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Split565 returns the raw 5/6/5 channel values of p.
func Split565(p uint16) (r, g, b uint16) {
	return (p & 0xF800) >> 11, (p & 0x07E0) >> 5, p & 0x001F
}

// Join565 packs raw 5/6/5 channel values, clamping each to its bit width.
func Join565(r, g, b int) uint16 {
	return uint16(clamp(r, 0x1F))<<11 | uint16(clamp(g, 0x3F))<<5 | uint16(clamp(b, 0x1F))
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Expand565 expands p to 8-bit channels.
func Expand565(p uint16) (r, g, b uint8) {
	r5, g6, b5 := Split565(p)

	// Expand 5/6/5 to 8/8/8
	r = uint8((r5 << 3) | (r5 >> 2))
	g = uint8((g6 << 2) | (g6 >> 4))
	b = uint8((b5 << 3) | (b5 >> 2))
	return r, g, b
}

// BGRAToRGB565 converts one B,G,R,A palette entry. Alpha is ignored.
func BGRAToRGB565(entry []byte) uint16 {
	if len(entry) < 3 {
		return 0
	}
	return Pack565(entry[2], entry[1], entry[0])
}

// Blend565Half mixes a and b 50/50 per channel.
func Blend565Half(a, b uint16) uint16 {
	ar, ag, ab := Split565(a)
	br, bg, bb := Split565(b)
	return (ar+br)>>1<<11 | (ag+bg)>>1<<5 | (ab+bb)>>1
}

// Diff565 returns the summed absolute channel difference of a and b,
// measured on 8-bit expanded channels (0..765).
func Diff565(a, b uint16) int {
	ar, ag, ab := Expand565(a)
	br, bg, bb := Expand565(b)
	return absDiff(ar, br) + absDiff(ag, bg) + absDiff(ab, bb)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// ReverseRow mirrors a pixel row in place.
func ReverseRow(row []uint16) {
	for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
		row[i], row[j] = row[j], row[i]
	}
}

// PutPixels serialises pixels into dst, two bytes each, and returns the
// number of bytes written. Panels that take the high byte first use
// bigEndian.
func PutPixels(dst []byte, pix []uint16, bigEndian bool) int {
	n := 0
	for _, p := range pix {
		if n+1 >= len(dst) {
			break
		}
		if bigEndian {
			dst[n], dst[n+1] = byte(p>>8), byte(p)
		} else {
			dst[n], dst[n+1] = byte(p), byte(p>>8)
		}
		n += 2
	}
	return n
}

// RGB565ToRGBA converts 16-bit RGB565 pixels to 32-bit RGBA
func RGB565ToRGBA(src []uint16, dst []byte) {
	dstIdx := 0
	for _, pel := range src {
		if dstIdx+3 >= len(dst) {
			return
		}
		r, g, b := Expand565(pel)
		dst[dstIdx] = r
		dst[dstIdx+1] = g
		dst[dstIdx+2] = b
		dst[dstIdx+3] = 255
		dstIdx += 4
	}
}

// RGBAToRGB565 converts packed RGBA bytes to RGB565 pixels.
func RGBAToRGB565(src []byte, dst []uint16) {
	for i, j := 0, 0; i+3 < len(src) && j < len(dst); i, j = i+4, j+1 {
		dst[j] = Pack565(src[i], src[i+1], src[i+2])
	}
}
