//go:build js && wasm

// Package main provides WebAssembly bindings for AAF asset decoding.
// This file contains only JavaScript glue code - all actual codec logic
// is in the internal/codec packages.
package main

import (
	"syscall/js"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/codec/aaf"
	"github.com/rcarmo/go-emote/internal/scale"
)

// loaded is the asset most recently passed to jsOpen.
var (
	loaded  *aaf.Format
	decoder = aaf.NewDecoder(aaf.DecoderOptions{})
	scaler  *scale.Scaler
	rgba    []byte
)

func copyIn(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func errorResult(err error) interface{} {
	return map[string]interface{}{"error": err.Error()}
}

// jsOpen parses an asset: open(Uint8Array) -> {frames} | {error}
func jsOpen(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	f, err := aaf.NewFormat(copyIn(args[0]))
	if err != nil {
		return errorResult(err)
	}
	if err := f.Verify(); err != nil {
		return errorResult(err)
	}
	loaded = f
	return map[string]interface{}{"frames": f.FrameCount()}
}

// jsDecodeFrame decodes frame i of the open asset into RGBA:
// decodeFrame(i, [width, height, filter]) -> {width, height, rgba} | {error}
func jsDecodeFrame(this js.Value, args []js.Value) interface{} {
	if loaded == nil || len(args) < 1 {
		return false
	}
	data, err := loaded.Frame(args[0].Int())
	if err != nil {
		return errorResult(err)
	}
	frame, err := decoder.DecodeFrame(data)
	if err != nil {
		return errorResult(err)
	}

	pix, w, h := frame.Pix, frame.Width, frame.Height
	if len(args) >= 3 {
		filter := scale.Bilinear
		if len(args) >= 4 {
			if filter, err = scale.ParseFilter(args[3].String()); err != nil {
				return errorResult(err)
			}
		}
		if scaler == nil {
			scaler = scale.NewScaler(filter, nil)
		}
		scaler.Filter = filter
		w, h = args[1].Int(), args[2].Int()
		if pix, err = scaler.Scale(frame.Pix, frame.Width, frame.Height, w, h); err != nil {
			return errorResult(err)
		}
	}

	if cap(rgba) < w*h*4 {
		rgba = make([]byte, w*h*4)
	}
	rgba = rgba[:w*h*4]
	codec.RGB565ToRGBA(pix, rgba)

	out := js.Global().Get("Uint8Array").New(len(rgba))
	js.CopyBytesToJS(out, rgba)
	return map[string]interface{}{
		"width":  w,
		"height": h,
		"rgba":   out,
	}
}

// jsStats reports decoder counters.
func jsStats(this js.Value, args []js.Value) interface{} {
	s := decoder.Stats()
	return map[string]interface{}{
		"frames":      int(s.Frames),
		"blocks":      int(s.Blocks),
		"blockErrors": int(s.BlockErrors),
	}
}

// jsRGB565toRGBA converts RGB565 pixels (Uint16Array) into an RGBA
// Uint8Array of matching length.
func jsRGB565toRGBA(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return false
	}
	srcArray, dstArray := args[0], args[1]
	n := srcArray.Get("length").Int()
	raw := make([]byte, n*2)
	js.CopyBytesToGo(raw, js.Global().Get("Uint8Array").New(srcArray.Get("buffer"), srcArray.Get("byteOffset"), n*2))
	src := make([]uint16, n)
	for i := range src {
		src[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	dst := make([]byte, dstArray.Get("length").Int())
	codec.RGB565ToRGBA(src, dst)
	js.CopyBytesToJS(dstArray, dst)
	return true
}

func main() {
	js.Global().Set("goAAF", js.ValueOf(map[string]interface{}{
		"open":         js.FuncOf(jsOpen),
		"decodeFrame":  js.FuncOf(jsDecodeFrame),
		"stats":        js.FuncOf(jsStats),
		"rgb565ToRGBA": js.FuncOf(jsRGB565toRGBA),
	}))

	select {}
}
