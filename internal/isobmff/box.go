package isobmff

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrTruncated is returned when a read runs past the end of the buffer
	// or a box header cannot be parsed.
	ErrTruncated = errors.New("isobmff: truncated data")

	// ErrOverflow is returned when a 64-bit field does not fit in an int.
	ErrOverflow = errors.New("isobmff: value exceeds native integer range")
)

const (
	compactHeaderSize  = 8
	extendedHeaderSize = 16
)

// Box describes the boundaries of one box inside a buffer.
type Box struct {
	Type         string
	Start        int // offset of the size field
	ContentStart int // first byte after the header
	End          int // exclusive
}

// HeaderSize returns the number of header bytes (8 or 16).
func (b Box) HeaderSize() int {
	return b.ContentStart - b.Start
}

// Len returns the total box length including its header.
func (b Box) Len() int {
	return b.End - b.Start
}

// ReadBox parses the box header at offset. The box must end at or before
// limit. A size of 0 extends the box to limit; a size of 1 means a 64-bit
// size follows the type field.
func ReadBox(buf []byte, offset, limit int) (Box, bool) {
	if limit > len(buf) {
		limit = len(buf)
	}
	if offset < 0 || offset+compactHeaderSize > limit {
		return Box{}, false
	}

	size := uint64(binary.BigEndian.Uint32(buf[offset:]))
	typ := string(buf[offset+4 : offset+8])
	header := compactHeaderSize

	switch size {
	case 1:
		if offset+extendedHeaderSize > limit {
			return Box{}, false
		}
		size = binary.BigEndian.Uint64(buf[offset+8:])
		header = extendedHeaderSize
		if size > math.MaxInt {
			return Box{}, false
		}
	case 0:
		size = uint64(limit - offset)
	}

	if size < uint64(header) {
		return Box{}, false
	}
	if size > uint64(limit-offset) {
		return Box{}, false
	}

	return Box{
		Type:         typ,
		Start:        offset,
		ContentStart: offset + header,
		End:          offset + int(size),
	}, true
}

// FindBox scans sibling boxes in [start, end) and returns the first one of
// the given type. Boxes are not assumed to be sorted.
func FindBox(buf []byte, start, end int, typ string) (Box, bool) {
	var found Box
	var ok bool
	_ = Walk(buf, start, end, func(b Box) bool {
		if b.Type == typ {
			found, ok = b, true
			return false
		}
		return true
	})
	return found, ok
}

// Walk calls fn for each sibling box in [start, end), in order, until fn
// returns false. It returns ErrTruncated when a header inside the range
// cannot be parsed, which means the boxes do not tile the range exactly.
func Walk(buf []byte, start, end int, fn func(Box) bool) error {
	if end > len(buf) {
		end = len(buf)
	}
	for p := start; p < end; {
		b, ok := ReadBox(buf, p, end)
		if !ok {
			return ErrTruncated
		}
		if !fn(b) {
			return nil
		}
		p = b.End
	}
	return nil
}

// ReadUintSized reads a big-endian unsigned integer of width bytes at off.
// Width 0 yields 0, which is how iloc encodes absent fields.
func ReadUintSized(buf []byte, off, width int) (int, error) {
	if width < 0 || width > 8 {
		return 0, ErrTruncated
	}
	if off < 0 || off+width > len(buf) {
		return 0, ErrTruncated
	}

	var v uint64
	switch width {
	case 0:
		return 0, nil
	case 1:
		v = uint64(buf[off])
	case 2:
		v = uint64(binary.BigEndian.Uint16(buf[off:]))
	case 4:
		v = uint64(binary.BigEndian.Uint32(buf[off:]))
	case 8:
		v = binary.BigEndian.Uint64(buf[off:])
	default:
		for i := 0; i < width; i++ {
			v = v<<8 | uint64(buf[off+i])
		}
	}

	if v > math.MaxInt {
		return 0, ErrOverflow
	}
	return int(v), nil
}
