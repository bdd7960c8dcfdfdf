package assets

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Pack layout, little-endian:
//
//	"EPAK" version:u32 count:u32
//	count x { nameLen:u16 name flags:u8 stored:u32 raw:u32 crc:u32 }
//	blobs, in entry order
//
// crc covers the raw (uncompressed) bytes.
const (
	PackMagic   = "EPAK"
	PackVersion = 1

	flagZstd = 1 << 0

	maxPackEntries = 1 << 16
	maxEntrySize   = 64 << 20
)

var (
	ErrPackMagic    = errors.New("assets: not an asset pack")
	ErrPackVersion  = errors.New("assets: unsupported pack version")
	ErrPackChecksum = errors.New("assets: entry checksum mismatch")
	ErrPackLimit    = errors.New("assets: pack exceeds limits")
)

// Entry is one named asset in a pack.
type Entry struct {
	Name string
	Data []byte
}

type entryHeader struct {
	name   string
	flags  uint8
	stored uint32
	raw    uint32
	crc    uint32
}

// OpenPack reads the pack file at path.
func OpenPack(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open asset pack")
	}
	defer f.Close()

	m, err := LoadPack(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load asset pack %s", path)
	}
	return m, nil
}

// LoadPack reads a pack from r into a Memory store. Entry ids follow pack
// order.
func LoadPack(r io.Reader) (*Memory, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read pack header")
	}
	if string(hdr[:4]) != PackMagic {
		return nil, ErrPackMagic
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != PackVersion {
		return nil, errors.Wrapf(ErrPackVersion, "version %d", v)
	}
	count := binary.LittleEndian.Uint32(hdr[8:])
	if count > maxPackEntries {
		return nil, errors.Wrapf(ErrPackLimit, "%d entries", count)
	}

	entries := make([]entryHeader, count)
	for i := range entries {
		e, err := readEntryHeader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d header", i)
		}
		entries[i] = e
	}

	var dec *zstd.Decoder
	defer func() {
		if dec != nil {
			dec.Close()
		}
	}()

	m := NewMemory()
	for i, e := range entries {
		stored := make([]byte, e.stored)
		if _, err := io.ReadFull(r, stored); err != nil {
			return nil, errors.Wrapf(err, "entry %d (%s) data", i, e.name)
		}

		data := stored
		if e.flags&flagZstd != 0 {
			if dec == nil {
				d, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxEntrySize))
				if err != nil {
					return nil, errors.Wrap(err, "create zstd decoder")
				}
				dec = d
			}
			raw, err := dec.DecodeAll(stored, make([]byte, 0, e.raw))
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d (%s) decompress", i, e.name)
			}
			data = raw
		}
		if uint32(len(data)) != e.raw {
			return nil, errors.Wrapf(ErrPackChecksum, "entry %d (%s): size %d, want %d", i, e.name, len(data), e.raw)
		}
		if crc32.ChecksumIEEE(data) != e.crc {
			return nil, errors.Wrapf(ErrPackChecksum, "entry %d (%s)", i, e.name)
		}
		m.Add(e.name, data)
	}
	return m, nil
}

func readEntryHeader(r io.Reader) (entryHeader, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return entryHeader{}, err
	}
	name := make([]byte, binary.LittleEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return entryHeader{}, err
	}
	var rest [13]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return entryHeader{}, err
	}
	e := entryHeader{
		name:   string(name),
		flags:  rest[0],
		stored: binary.LittleEndian.Uint32(rest[1:]),
		raw:    binary.LittleEndian.Uint32(rest[5:]),
		crc:    binary.LittleEndian.Uint32(rest[9:]),
	}
	if e.stored > maxEntrySize || e.raw > maxEntrySize {
		return entryHeader{}, errors.Wrapf(ErrPackLimit, "entry %s is %d bytes", e.name, e.raw)
	}
	return e, nil
}

// WritePack writes entries to w. With compress set each entry is stored
// zstd-compressed unless that would not make it smaller.
func WritePack(w io.Writer, entries []Entry, compress bool) error {
	if len(entries) > maxPackEntries {
		return errors.Wrapf(ErrPackLimit, "%d entries", len(entries))
	}

	var enc *zstd.Encoder
	if compress {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return errors.Wrap(err, "create zstd encoder")
		}
		defer e.Close()
		enc = e
	}

	var head bytes.Buffer
	head.WriteString(PackMagic)
	_ = binary.Write(&head, binary.LittleEndian, uint32(PackVersion))
	_ = binary.Write(&head, binary.LittleEndian, uint32(len(entries)))

	blobs := make([][]byte, len(entries))
	for i, e := range entries {
		if len(e.Name) > 0xFFFF {
			return errors.Wrapf(ErrPackLimit, "entry %d name is %d bytes", i, len(e.Name))
		}
		if len(e.Data) > maxEntrySize {
			return errors.Wrapf(ErrPackLimit, "entry %s is %d bytes", e.Name, len(e.Data))
		}

		var flags uint8
		blob := e.Data
		if enc != nil {
			if z := enc.EncodeAll(e.Data, nil); len(z) < len(e.Data) {
				blob = z
				flags |= flagZstd
			}
		}
		blobs[i] = blob

		_ = binary.Write(&head, binary.LittleEndian, uint16(len(e.Name)))
		head.WriteString(e.Name)
		head.WriteByte(flags)
		_ = binary.Write(&head, binary.LittleEndian, uint32(len(blob)))
		_ = binary.Write(&head, binary.LittleEndian, uint32(len(e.Data)))
		_ = binary.Write(&head, binary.LittleEndian, crc32.ChecksumIEEE(e.Data))
	}

	if _, err := w.Write(head.Bytes()); err != nil {
		return errors.Wrap(err, "write pack header")
	}
	for i, b := range blobs {
		if _, err := w.Write(b); err != nil {
			return errors.Wrapf(err, "write entry %s", entries[i].Name)
		}
	}
	return nil
}
