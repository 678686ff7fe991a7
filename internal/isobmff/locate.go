package isobmff

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNoMeta is returned when the file has no top-level meta box.
	ErrNoMeta = errors.New("isobmff: no meta box")

	// ErrItemNotFound is returned when no infe entry has the requested type.
	ErrItemNotFound = errors.New("isobmff: item type not found")

	// ErrNoLocation is returned when the item has no iloc record.
	ErrNoLocation = errors.New("isobmff: item has no location")

	// ErrUnsupportedVersion is returned for iloc versions or construction
	// methods this package does not implement.
	ErrUnsupportedVersion = errors.New("isobmff: unsupported box version")

	// ErrOutOfBounds is returned when an extent points outside the file.
	ErrOutOfBounds = errors.New("isobmff: extent out of bounds")
)

// Construction methods from the iloc box.
const (
	constructionFile = 0
	constructionIDat = 1
)

// reader is a bounds-checked big-endian cursor over buf[pos:end]. The
// first failed read sets err and every later read returns zero.
type reader struct {
	buf []byte
	pos int
	end int
	err error
}

func newReader(buf []byte, start, end int) *reader {
	if end > len(buf) {
		end = len(buf)
	}
	return &reader{buf: buf, pos: start, end: end}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > r.end {
		r.err = ErrTruncated
		return false
	}
	return true
}

func (r *reader) u8() int {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return int(v)
}

func (r *reader) u16() int {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return int(v)
}

func (r *reader) u32() int {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return int(v)
}

func (r *reader) sized(width int) int {
	if !r.need(width) {
		return 0
	}
	v, err := ReadUintSized(r.buf[:r.end], r.pos, width)
	if err != nil {
		r.err = err
		return 0
	}
	r.pos += width
	return v
}

func (r *reader) fourCC() string {
	if !r.need(4) {
		return ""
	}
	s := string(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return s
}

func (r *reader) skip(n int) {
	if r.need(n) {
		r.pos += n
	}
}

// fullBoxHeader reads the version byte and 24-bit flags of a full box.
func (r *reader) fullBoxHeader() (version int) {
	version = r.u8()
	r.skip(3)
	return version
}

type extent struct {
	offset int
	length int
}

type itemLocation struct {
	constructionMethod int
	baseOffset         int
	extents            []extent
}

// metaTables holds the spans of the meta children LocateItem needs.
type metaTables struct {
	iinf, iloc, idat Box
	hasIinf, hasIloc bool
	hasIdat          bool
}

// LocateItem returns a copy of the bytes of the first item whose infe type
// equals itemType. Extents are concatenated in the order iloc lists them.
func LocateItem(data []byte, itemType string) ([]byte, error) {
	meta, ok := FindBox(data, 0, len(data), "meta")
	if !ok {
		return nil, ErrNoMeta
	}

	tables, err := scanMeta(data, meta)
	if err != nil {
		return nil, err
	}
	if !tables.hasIinf {
		return nil, ErrItemNotFound
	}
	if !tables.hasIloc {
		return nil, ErrNoLocation
	}

	itemID, err := findItemID(data, tables.iinf, itemType)
	if err != nil {
		return nil, err
	}

	loc, err := findItemLocation(data, tables.iloc, itemID)
	if err != nil {
		return nil, err
	}

	return copyExtents(data, loc, tables)
}

// LocateItemBytes is LocateItem with every failure reported as nil.
func LocateItemBytes(data []byte, itemType string) []byte {
	b, err := LocateItem(data, itemType)
	if err != nil {
		return nil
	}
	return b
}

func scanMeta(data []byte, meta Box) (metaTables, error) {
	var t metaTables

	// meta is a full box: 4 bytes of version and flags precede the children.
	childStart := meta.ContentStart + 4
	if childStart > meta.End {
		return t, ErrTruncated
	}

	err := Walk(data, childStart, meta.End, func(b Box) bool {
		switch b.Type {
		case "iinf":
			if !t.hasIinf {
				t.iinf, t.hasIinf = b, true
			}
		case "iloc":
			if !t.hasIloc {
				t.iloc, t.hasIloc = b, true
			}
		case "idat":
			if !t.hasIdat {
				t.idat, t.hasIdat = b, true
			}
		}
		return true
	})
	// A damaged trailing child does not hide tables already found.
	if err != nil && !(t.hasIinf && t.hasIloc) {
		return t, err
	}
	return t, nil
}

func findItemID(data []byte, iinf Box, itemType string) (int, error) {
	r := newReader(data, iinf.ContentStart, iinf.End)
	version := r.fullBoxHeader()
	var count int
	if version == 0 {
		count = r.u16()
	} else {
		count = r.u32()
	}
	if r.err != nil {
		return 0, fmt.Errorf("iinf header: %w", r.err)
	}

	p := r.pos
	for i := 0; i < count && p+compactHeaderSize <= iinf.End; i++ {
		entry, ok := ReadBox(data, p, iinf.End)
		if !ok {
			break
		}
		p = entry.End

		if entry.Type != "infe" {
			continue
		}
		id, typ, ok := readInfe(data, entry)
		if ok && typ == itemType {
			return id, nil
		}
	}
	return 0, ErrItemNotFound
}

// readInfe decodes an infe entry. Versions other than 2 and 3 carry no
// item type in a form this package reads, so they report !ok and the
// caller moves on to the next entry.
func readInfe(data []byte, entry Box) (id int, typ string, ok bool) {
	r := newReader(data, entry.ContentStart, entry.End)
	version := r.fullBoxHeader()
	switch version {
	case 2:
		id = r.u16()
	case 3:
		id = r.u32()
	default:
		return 0, "", false
	}
	r.skip(2) // item_protection_index
	typ = r.fourCC()
	if r.err != nil {
		return 0, "", false
	}
	return id, typ, true
}

func findItemLocation(data []byte, iloc Box, itemID int) (itemLocation, error) {
	r := newReader(data, iloc.ContentStart, iloc.End)
	version := r.fullBoxHeader()
	if r.err == nil && version > 2 {
		return itemLocation{}, fmt.Errorf("iloc version %d: %w", version, ErrUnsupportedVersion)
	}

	sizes := r.u16()
	offsetSize := (sizes >> 12) & 0xF
	lengthSize := (sizes >> 8) & 0xF
	baseOffsetSize := (sizes >> 4) & 0xF
	indexSize := 0
	if version == 1 || version == 2 {
		indexSize = sizes & 0xF
	}

	var count int
	if version < 2 {
		count = r.u16()
	} else {
		count = r.u32()
	}

	for i := 0; i < count && r.err == nil; i++ {
		var id int
		if version < 2 {
			id = r.u16()
		} else {
			id = r.u32()
		}

		loc := itemLocation{}
		if version == 1 || version == 2 {
			loc.constructionMethod = r.u16() & 0x0FFF
		}
		r.skip(2) // data_reference_index
		loc.baseOffset = r.sized(baseOffsetSize)

		extents := r.u16()
		if id == itemID {
			loc.extents = make([]extent, 0, extents)
		}
		for e := 0; e < extents && r.err == nil; e++ {
			if indexSize > 0 {
				r.sized(indexSize)
			}
			off := r.sized(offsetSize)
			length := r.sized(lengthSize)
			if id == itemID {
				loc.extents = append(loc.extents, extent{offset: off, length: length})
			}
		}

		if r.err != nil {
			break
		}
		if id == itemID {
			return loc, nil
		}
	}

	if r.err != nil {
		return itemLocation{}, fmt.Errorf("iloc: %w", r.err)
	}
	return itemLocation{}, ErrNoLocation
}

func copyExtents(data []byte, loc itemLocation, t metaTables) ([]byte, error) {
	var base int
	switch loc.constructionMethod {
	case constructionFile:
		base = loc.baseOffset
	case constructionIDat:
		if !t.hasIdat {
			return nil, fmt.Errorf("construction method 1 without idat: %w", ErrNoLocation)
		}
		base = t.idat.ContentStart
	default:
		return nil, fmt.Errorf("construction method %d: %w", loc.constructionMethod, ErrUnsupportedVersion)
	}

	total := 0
	for _, e := range loc.extents {
		start := base + e.offset
		end := start + e.length
		if start < 0 || end < start || end > len(data) {
			return nil, ErrOutOfBounds
		}
		total += e.length
	}

	out := make([]byte, 0, total)
	for _, e := range loc.extents {
		start := base + e.offset
		out = append(out, data[start:start+e.length]...)
	}
	return out, nil
}
