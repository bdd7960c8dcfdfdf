package aaf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// Magic opens every asset.
var Magic = []byte{0x89, 'A', 'A', 'F'}

const (
	assetHeaderSize = 16
	tableEntrySize  = 8
)

type frameEntry struct {
	size   uint32
	offset uint32
}

// Format is a parsed asset. It references data without copying it.
type Format struct {
	data      []byte
	table     []frameEntry
	dataStart int
	checksum  uint32
}

// NewFormat parses the asset container header and frame table.
func NewFormat(data []byte) (*Format, error) {
	if len(data) < assetHeaderSize {
		return nil, formatErr(-1, ErrTruncated, "asset header needs %d bytes, have %d", assetHeaderSize, len(data))
	}
	if !bytes.Equal(data[:4], Magic) {
		return nil, formatErr(-1, ErrBadMagic, "magic % x", data[:4])
	}

	count := binary.LittleEndian.Uint32(data[4:])
	checksum := binary.LittleEndian.Uint32(data[8:])
	tableLen := binary.LittleEndian.Uint32(data[12:])
	if uint64(tableLen) != uint64(count)*tableEntrySize {
		return nil, formatErr(-1, ErrBadHeader, "table length %d for %d frames", tableLen, count)
	}
	if uint64(len(data)-assetHeaderSize) < uint64(tableLen) {
		return nil, formatErr(-1, ErrTruncated, "frame table")
	}

	f := &Format{
		data:      data,
		table:     make([]frameEntry, count),
		dataStart: assetHeaderSize + int(tableLen),
		checksum:  checksum,
	}
	off := assetHeaderSize
	for i := range f.table {
		f.table[i] = frameEntry{
			size:   binary.LittleEndian.Uint32(data[off:]),
			offset: binary.LittleEndian.Uint32(data[off+4:]),
		}
		off += tableEntrySize
	}
	return f, nil
}

// FrameCount returns the number of frames in the asset.
func (f *Format) FrameCount() int {
	return len(f.table)
}

// Frame returns the payload of frame i, without its 0x5A5A prefix.
func (f *Format) Frame(i int) ([]byte, error) {
	if i < 0 || i >= len(f.table) {
		return nil, formatErr(i, ErrNotFound, "asset has %d frames", len(f.table))
	}
	e := f.table[i]
	start := uint64(f.dataStart) + uint64(e.offset)
	end := start + uint64(e.size)
	if end > uint64(len(f.data)) {
		return nil, formatErr(i, ErrTruncated, "frame ends at %d, asset has %d bytes", end, len(f.data))
	}
	frame := f.data[start:end]
	if len(frame) < 2 || binary.BigEndian.Uint16(frame) != FramePrefix {
		return nil, formatErr(i, ErrBadMagic, "missing frame prefix")
	}
	return frame[2:], nil
}

// Verify checks the CRC-32 of the frame data.
func (f *Format) Verify() error {
	if got := crc32.ChecksumIEEE(f.data[f.dataStart:]); got != f.checksum {
		return formatErr(-1, ErrChecksum, "crc %08x, header says %08x", got, f.checksum)
	}
	return nil
}

// Size returns the asset size in bytes.
func (f *Format) Size() int {
	return len(f.data)
}
