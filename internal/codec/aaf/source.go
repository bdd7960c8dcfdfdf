package aaf

import (
	"image"
	"image/color"
	"sort"

	"github.com/rcarmo/go-emote/internal/codec"
)

// SourceFromImage converts img into a SourceFrame at depth. Indexed depths
// keep the most frequent colours and map the rest to the nearest entry.
func SourceFromImage(img image.Image, depth BitDepth) SourceFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src := SourceFrame{Width: w, Height: h, Depth: depth}

	rgba := make([]color.RGBA, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba = append(rgba, color.RGBAModel.Convert(img.At(x, y)).(color.RGBA))
		}
	}

	if depth == Depth24 {
		src.Pix = make([]uint16, len(rgba))
		for i, c := range rgba {
			src.Pix[i] = codec.Pack565(c.R, c.G, c.B)
		}
		return src
	}

	src.Palette = buildPalette(rgba, depth.PaletteEntries())
	pal := make(color.Palette, len(src.Palette))
	for i, c := range src.Palette {
		pal[i] = c
	}
	lookup := make(map[color.RGBA]uint8, len(pal))
	for i, c := range src.Palette {
		lookup[c] = uint8(i)
	}

	src.Index = make([]uint8, len(rgba))
	for i, c := range rgba {
		idx, ok := lookup[c]
		if !ok {
			idx = uint8(pal.Index(c))
			lookup[c] = idx
		}
		src.Index[i] = idx
	}
	return src
}

func buildPalette(pixels []color.RGBA, size int) []color.RGBA {
	counts := make(map[color.RGBA]int)
	for _, c := range pixels {
		counts[c]++
	}
	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		ci, cj := counts[colors[i]], counts[colors[j]]
		if ci != cj {
			return ci > cj
		}
		return rgbaKey(colors[i]) < rgbaKey(colors[j])
	})
	if len(colors) > size {
		colors = colors[:size]
	}
	if len(colors) == 0 {
		colors = append(colors, color.RGBA{A: 0xFF})
	}
	return colors
}

func rgbaKey(c color.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}
