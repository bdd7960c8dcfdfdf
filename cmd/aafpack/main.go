// Command aafpack encodes image frames into AAF assets and bundles assets
// into packs for emoted.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/gif"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/rcarmo/go-emote/internal/assets"
	"github.com/rcarmo/go-emote/internal/codec/aaf"
	"github.com/rcarmo/go-emote/internal/logging"
)

const (
	appName    = "aafpack"
	appVersion = "v0.4.0"
)

type encodeArgs struct {
	output      string
	depth       aaf.BitDepth
	blockHeight int
	encodings   []aaf.Encoding
	quality     int
	width       int
	height      int
	inputs      []string
}

type packArgs struct {
	output   string
	compress bool
	inputs   []string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(argv []string, out io.Writer) error {
	if len(argv) == 0 {
		showHelp(out)
		return errors.New("missing command")
	}
	switch argv[0] {
	case "encode":
		args, err := parseEncodeFlags(argv[1:])
		if err != nil {
			return err
		}
		return encodeFiles(args, out)
	case "pack":
		args, err := parsePackFlags(argv[1:])
		if err != nil {
			return err
		}
		return packFiles(args, out)
	case "info":
		if len(argv) < 2 {
			return errors.New("info: missing file")
		}
		return describe(argv[1:], out)
	case "-help", "--help", "help":
		showHelp(out)
		return nil
	case "-version", "--version", "version":
		fmt.Fprintf(out, "%s %s\n", appName, appVersion)
		return nil
	}
	showHelp(out)
	return errors.Errorf("unknown command %q", argv[0])
}

func parseEncodeFlags(argv []string) (encodeArgs, error) {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	output := fs.String("o", "", "output asset path")
	depth := fs.Int("depth", 24, "bit depth (4, 8, 24)")
	blockHeight := fs.Int("block-height", aaf.DefaultBlockHeight, "rows per block")
	encodings := fs.String("encodings", "", "comma-separated candidate schemes")
	useJPEG := fs.Bool("jpeg", false, "add jpeg to the candidates (depth 24)")
	quality := fs.Int("quality", 85, "jpeg quality")
	width := fs.Int("width", 0, "resize frames to this width")
	height := fs.Int("height", 0, "resize frames to this height")

	if err := fs.Parse(argv); err != nil {
		return encodeArgs{}, err
	}

	args := encodeArgs{
		output:      strings.TrimSpace(*output),
		depth:       aaf.BitDepth(*depth), // #nosec G115
		blockHeight: *blockHeight,
		quality:     *quality,
		width:       *width,
		height:      *height,
		inputs:      fs.Args(),
	}
	if args.output == "" {
		return args, errors.New("encode: -o is required")
	}
	if len(args.inputs) == 0 {
		return args, errors.New("encode: no input frames")
	}
	if !args.depth.Valid() {
		return args, errors.Errorf("encode: unsupported depth %d", *depth)
	}
	if (args.width == 0) != (args.height == 0) {
		return args, errors.New("encode: -width and -height go together")
	}
	for _, name := range strings.Split(*encodings, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		enc, err := aaf.ParseEncoding(name)
		if err != nil {
			return args, errors.Wrap(err, "encode")
		}
		args.encodings = append(args.encodings, enc)
	}
	if *useJPEG {
		if len(args.encodings) == 0 {
			args.encodings = []aaf.Encoding{aaf.EncodingRLE, aaf.EncodingHuffmanRLE, aaf.EncodingHuffman}
		}
		args.encodings = append(args.encodings, aaf.EncodingJPEG)
	}
	return args, nil
}

func parsePackFlags(argv []string) (packArgs, error) {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	output := fs.String("o", "", "output pack path")
	compress := fs.Bool("z", false, "zstd-compress entries")

	if err := fs.Parse(argv); err != nil {
		return packArgs{}, err
	}
	args := packArgs{
		output:   strings.TrimSpace(*output),
		compress: *compress,
		inputs:   fs.Args(),
	}
	if args.output == "" {
		return args, errors.New("pack: -o is required")
	}
	if len(args.inputs) == 0 {
		return args, errors.New("pack: no assets")
	}
	return args, nil
}

// expandInputs replaces directories with their image files in name order.
func expandInputs(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		st, err := os.Stat(in)
		if err != nil {
			return nil, errors.Wrap(err, "stat input")
		}
		if !st.IsDir() {
			files = append(files, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, errors.Wrap(err, "read input dir")
		}
		var names []string
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".png", ".gif", ".bmp":
				if !e.IsDir() {
					names = append(names, e.Name())
				}
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(in, n))
		}
	}
	return files, nil
}

// loadFrames decodes every input into frames. An animated GIF contributes
// one frame per image, composited the way a viewer would show them.
func loadFrames(paths []string) ([]image.Image, error) {
	var frames []image.Image
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read frame")
		}
		if strings.EqualFold(filepath.Ext(path), ".gif") {
			g, err := gif.DecodeAll(bytes.NewReader(data))
			if err != nil {
				return nil, errors.Wrapf(err, "decode %s", path)
			}
			frames = append(frames, gifFrames(g)...)
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func gifFrames(g *gif.GIF) []image.Image {
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	out := make([]image.Image, 0, len(g.Image))
	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(canvas.Bounds())
			draw.Draw(previous, previous.Bounds(), canvas, image.Point{}, draw.Src)
		}
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		snap := image.NewRGBA(canvas.Bounds())
		draw.Draw(snap, snap.Bounds(), canvas, image.Point{}, draw.Src)
		out = append(out, snap)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return out
}

func resize(img image.Image, w, h int) image.Image {
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// encodeFrames turns images into one AAF asset.
func encodeFrames(frames []image.Image, args encodeArgs) ([]byte, error) {
	var enc aaf.Encoder
	opts := aaf.EncodeOptions{
		BlockHeight: args.blockHeight,
		Encodings:   args.encodings,
		JPEGQuality: args.quality,
	}
	payloads := make([][]byte, 0, len(frames))
	for i, img := range frames {
		if args.width > 0 {
			img = resize(img, args.width, args.height)
		}
		payload, err := enc.EncodeFrame(aaf.SourceFromImage(img, args.depth), opts)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		payloads = append(payloads, payload)
	}
	return aaf.EncodeAsset(payloads), nil
}

func encodeFiles(args encodeArgs, out io.Writer) error {
	paths, err := expandInputs(args.inputs)
	if err != nil {
		return err
	}
	frames, err := loadFrames(paths)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errors.New("encode: no frames decoded")
	}
	asset, err := encodeFrames(frames, args)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args.output, asset, 0o644); err != nil { // #nosec G306
		return errors.Wrap(err, "write asset")
	}
	logging.Debug("encoded %d frames at depth %d", len(frames), args.depth)
	fmt.Fprintf(out, "%s: %d frames, %d bytes\n", args.output, len(frames), len(asset))
	return nil
}

func packFiles(args packArgs, out io.Writer) error {
	entries := make([]assets.Entry, 0, len(args.inputs))
	for _, path := range args.inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read asset")
		}
		f, err := aaf.NewFormat(data)
		if err != nil {
			return errors.Wrapf(err, "check %s", path)
		}
		if err := f.Verify(); err != nil {
			return errors.Wrapf(err, "check %s", path)
		}
		entries = append(entries, assets.Entry{Name: filepath.Base(path), Data: data})
	}

	var buf bytes.Buffer
	if err := assets.WritePack(&buf, entries, args.compress); err != nil {
		return errors.Wrap(err, "build pack")
	}
	if err := os.WriteFile(args.output, buf.Bytes(), 0o644); err != nil { // #nosec G306
		return errors.Wrap(err, "write pack")
	}
	fmt.Fprintf(out, "%s: %d assets, %d bytes\n", args.output, len(entries), buf.Len())
	return nil
}

// describe prints the frames of an asset or the entries of a pack.
func describe(paths []string, out io.Writer) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read")
		}
		if bytes.HasPrefix(data, []byte(assets.PackMagic)) {
			store, err := assets.LoadPack(bytes.NewReader(data))
			if err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			fmt.Fprintf(out, "%s: pack, %d assets\n", path, store.Len())
			for _, name := range store.Names() {
				id, _ := store.Lookup(name)
				asset, _ := store.Asset(id)
				if err := describeAsset(out, "  "+name, asset); err != nil {
					return err
				}
			}
			continue
		}
		if err := describeAsset(out, path, data); err != nil {
			return err
		}
	}
	return nil
}

func describeAsset(out io.Writer, label string, data []byte) error {
	f, err := aaf.NewFormat(data)
	if err != nil {
		return errors.Wrapf(err, "parse %s", label)
	}
	verified := "ok"
	if err := f.Verify(); err != nil {
		verified = err.Error()
	}
	fmt.Fprintf(out, "%s: %d frames, %d bytes, checksum %s\n", label, f.FrameCount(), f.Size(), verified)
	for i := 0; i < f.FrameCount(); i++ {
		frame, err := f.Frame(i)
		if err != nil {
			return err
		}
		h, err := aaf.ParseFrameHeader(frame)
		if err != nil {
			fmt.Fprintf(out, "    frame %d: %v\n", i, err)
			continue
		}
		fmt.Fprintf(out, "    frame %d: %dx%d depth %d, %d blocks of %d rows\n",
			i, h.Width, h.Height, h.BitDepth, h.BlockCount, h.BlockHeight)
	}
	return nil
}

func showHelp(out io.Writer) {
	fmt.Fprintln(out, appName)
	fmt.Fprintln(out, "USAGE:")
	fmt.Fprintln(out, "  aafpack encode -o out.aaf [options] frames...   PNG/BMP files, directories or an animated GIF")
	fmt.Fprintln(out, "  aafpack pack -o out.epak [-z] assets...")
	fmt.Fprintln(out, "  aafpack info files...")
	fmt.Fprintln(out, "ENCODE OPTIONS:")
	fmt.Fprintln(out, "  -depth         Bit depth: 4, 8 or 24 (default 24)")
	fmt.Fprintln(out, "  -block-height  Rows per block (default 16)")
	fmt.Fprintln(out, "  -encodings     Candidate schemes: rle, huffman+rle, huffman, jpeg")
	fmt.Fprintln(out, "  -jpeg          Also try jpeg blocks (depth 24 only)")
	fmt.Fprintln(out, "  -quality       JPEG quality (default 85)")
	fmt.Fprintln(out, "  -width/-height Resize frames before encoding")
	fmt.Fprintln(out, "EXAMPLES: aafpack encode -o happy_one.aaf -depth 8 frames/happy/")
}
