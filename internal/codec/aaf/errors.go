package aaf

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("aaf: not found")
	ErrBadMagic            = errors.New("aaf: signature mismatch")
	ErrTruncated           = errors.New("aaf: truncated data")
	ErrBadHeader           = errors.New("aaf: malformed header")
	ErrChecksum            = errors.New("aaf: checksum mismatch")
	ErrUnsupportedEncoding = errors.New("aaf: unsupported block encoding")
	ErrCorruptBlock        = errors.New("aaf: corrupt block")
)

// FormatError is returned when an asset or frame header cannot be used.
// It is fatal to the asset that produced it.
type FormatError struct {
	// Frame is the frame index, or -1 for the asset container.
	Frame  int
	Err    error
	Detail string
}

func (e *FormatError) Error() string {
	where := "asset"
	if e.Frame >= 0 {
		where = fmt.Sprintf("frame %d", e.Frame)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", where, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", where, e.Err, e.Detail)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErr(frame int, err error, format string, args ...interface{}) *FormatError {
	return &FormatError{Frame: frame, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// DecodeError reports a block that could not be decoded. Only that block's
// rows are affected.
type DecodeError struct {
	Block    int
	Encoding Encoding
	Err      error
	Cause    error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("block %d (%s): %v", e.Block, e.Encoding, e.Err)
	}
	return fmt.Sprintf("block %d (%s): %v: %v", e.Block, e.Encoding, e.Err, e.Cause)
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
