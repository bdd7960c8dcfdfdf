package codec

import "errors"

var (
	ErrRLETruncated = errors.New("rle: stream ended before the expected unit count")
	ErrRLEOverflow  = errors.New("rle: stream produces more units than expected")
	ErrRLEShortDst  = errors.New("rle: destination too small")
)

// Unit is the element the run-length scheme counts in. Its value is the
// unit width in bits.
type Unit int

const (
	UnitNibble  Unit = 4
	UnitByte    Unit = 8
	UnitPixel16 Unit = 16
)

const (
	rleRunFlag    = 0x80
	rleLengthMask = 0x7F
	// A zero length field means the next byte holds length-128.
	rleExtendedBase = 128
	rleMaxLength    = rleExtendedBase + 0xFF
	rleMinRun       = 3
)

// Bytes returns the number of bytes n units occupy when packed.
func (u Unit) Bytes(n int) int {
	switch u {
	case UnitNibble:
		return (n + 1) / 2
	case UnitPixel16:
		return n * 2
	default:
		return n
	}
}

func (u Unit) valueBytes() int {
	if u == UnitPixel16 {
		return 2
	}
	return 1
}

func (u Unit) get(buf []byte, i int) uint16 {
	switch u {
	case UnitNibble:
		b := buf[i/2]
		if i%2 == 0 {
			return uint16(b >> 4)
		}
		return uint16(b & 0x0F)
	case UnitPixel16:
		return uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
	default:
		return uint16(buf[i])
	}
}

func (u Unit) set(buf []byte, i int, v uint16) {
	switch u {
	case UnitNibble:
		if i%2 == 0 {
			buf[i/2] = buf[i/2]&0x0F | byte(v&0x0F)<<4
		} else {
			buf[i/2] = buf[i/2]&0xF0 | byte(v&0x0F)
		}
	case UnitPixel16:
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	default:
		buf[i] = byte(v)
	}
}

// readLength decodes the length field of code c whose extension byte, if
// any, is at src[idx].
func readLength(c byte, src []byte, idx int) (length, next int, ok bool) {
	length = int(c & rleLengthMask)
	if length != 0 {
		return length, idx, true
	}
	if idx >= len(src) {
		return 0, idx, false
	}
	return rleExtendedBase + int(src[idx]), idx + 1, true
}

// RLEDecode expands src into exactly units elements of dst and returns the
// number of source bytes consumed. It never reads past src or writes past
// the units region of dst.
func RLEDecode(u Unit, src, dst []byte, units int) (int, error) {
	if len(dst) < u.Bytes(units) {
		return 0, ErrRLEShortDst
	}

	srcIdx := 0
	out := 0
	for out < units {
		if srcIdx >= len(src) {
			return srcIdx, ErrRLETruncated
		}
		c := src[srcIdx]
		length, next, ok := readLength(c, src, srcIdx+1)
		if !ok {
			return srcIdx, ErrRLETruncated
		}
		srcIdx = next
		if out+length > units {
			return srcIdx, ErrRLEOverflow
		}

		if c&rleRunFlag != 0 {
			if srcIdx+u.valueBytes() > len(src) {
				return srcIdx, ErrRLETruncated
			}
			var v uint16
			if u == UnitNibble {
				v = uint16(src[srcIdx] & 0x0F)
			} else {
				v = u.get(src[srcIdx:], 0)
			}
			srcIdx += u.valueBytes()
			fillUnits(u, dst, out, length, v)
			out += length
			continue
		}

		n := u.Bytes(length)
		if srcIdx+n > len(src) {
			return srcIdx, ErrRLETruncated
		}
		copyUnits(u, dst, out, src[srcIdx:srcIdx+n], length)
		srcIdx += n
		out += length
	}
	return srcIdx, nil
}

func fillUnits(u Unit, dst []byte, at, n int, v uint16) {
	if u == UnitByte {
		b := byte(v)
		for i := at; i < at+n; i++ {
			dst[i] = b
		}
		return
	}
	for i := at; i < at+n; i++ {
		u.set(dst, i, v)
	}
}

func copyUnits(u Unit, dst []byte, at int, packed []byte, n int) {
	if u != UnitNibble {
		copy(dst[u.Bytes(at):], packed)
		return
	}
	for i := 0; i < n; i++ {
		u.set(dst, at+i, u.get(packed, i))
	}
}

// RLEEncode compresses the first units elements of src. Runs of three or
// more identical units become run codes, everything else literals.
func RLEEncode(u Unit, src []byte, units int) []byte {
	out := make([]byte, 0, u.Bytes(units)/2+8)

	runAt := func(i int) int {
		v := u.get(src, i)
		n := 1
		for i+n < units && n < rleMaxLength && u.get(src, i+n) == v {
			n++
		}
		return n
	}

	i := 0
	for i < units {
		if run := runAt(i); run >= rleMinRun {
			out = appendLength(out, rleRunFlag, run)
			v := u.get(src, i)
			if u == UnitPixel16 {
				out = append(out, byte(v), byte(v>>8))
			} else {
				out = append(out, byte(v))
			}
			i += run
			continue
		}

		start := i
		for i < units && i-start < rleMaxLength {
			if runAt(i) >= rleMinRun {
				break
			}
			i++
		}
		out = appendLength(out, 0, i-start)
		out = appendUnits(u, out, src, start, i-start)
	}
	return out
}

func appendLength(out []byte, flag byte, n int) []byte {
	if n < rleExtendedBase {
		return append(out, flag|byte(n))
	}
	return append(out, flag, byte(n-rleExtendedBase))
}

func appendUnits(u Unit, out, src []byte, at, n int) []byte {
	if u != UnitNibble {
		start := u.Bytes(at)
		return append(out, src[start:start+u.Bytes(n)]...)
	}
	base := len(out)
	out = append(out, make([]byte, u.Bytes(n))...)
	for i := 0; i < n; i++ {
		u.set(out[base:], i, u.get(src, at+i))
	}
	return out
}
