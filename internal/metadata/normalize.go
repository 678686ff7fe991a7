package metadata

import (
	"bytes"
	"encoding/binary"

	"heic-to-jpg/internal/isobmff"
)

// ExifMarker prefixes every Exif APP1 payload.
var ExifMarker = []byte("Exif\x00\x00")

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

const (
	// markerSearchWindow bounds how far into an item the marker is searched.
	markerSearchWindow = 128

	// minItemSize is the smallest item that can hold an offset and a header.
	minItemSize = 12
)

// Normalize returns item as an APP1 Exif payload. It recognises an item
// that already carries the marker in its first 128 bytes, a bare TIFF
// stream, and a 4-byte big-endian offset followed by the TIFF stream at
// 4+offset. The returned slice is always a fresh copy.
func Normalize(item []byte) ([]byte, bool) {
	if len(item) < minItemSize {
		return nil, false
	}

	window := item
	if len(window) > markerSearchWindow {
		window = window[:markerSearchWindow]
	}
	if at := bytes.Index(window, ExifMarker); at >= 0 {
		return bytes.Clone(item[at:]), true
	}

	if isTIFFHeader(item) {
		return withMarker(item), true
	}

	offset := binary.BigEndian.Uint32(item)
	start := uint64(4) + uint64(offset)
	if start+4 <= uint64(len(item)) && isTIFFHeader(item[start:]) {
		return withMarker(item[start:]), true
	}

	return nil, false
}

// ExtractFromHEIF locates the Exif item in a HEIF file and normalizes it.
func ExtractFromHEIF(src []byte) ([]byte, bool) {
	item := isobmff.LocateItemBytes(src, "Exif")
	if item == nil {
		return nil, false
	}
	return Normalize(item)
}

func isTIFFHeader(b []byte) bool {
	return bytes.HasPrefix(b, tiffLittleEndian) || bytes.HasPrefix(b, tiffBigEndian)
}

func withMarker(tiff []byte) []byte {
	out := make([]byte, 0, len(ExifMarker)+len(tiff))
	out = append(out, ExifMarker...)
	return append(out, tiff...)
}
