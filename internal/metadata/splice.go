package metadata

import (
	"bytes"
	"encoding/binary"
)

// JPEG marker bytes.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerAPP0   = 0xE0
	markerAPP1   = 0xE1
)

const (
	minPayloadSize = 8
	maxSegmentLen  = 0xFFFF
)

// segment is one marker segment. payload is nil when the declared length
// runs past the end of the stream.
type segment struct {
	marker  byte
	payload []byte
	end     int
}

// segments calls fn for each marker segment after SOI until SOS, EOI, a
// malformed length, or fn returning false.
func segments(jpeg []byte, fn func(segment) bool) {
	p := 2
	for p+4 < len(jpeg) && jpeg[p] == markerPrefix {
		marker := jpeg[p+1]
		if marker == markerSOS || marker == markerEOI {
			return
		}
		length := int(binary.BigEndian.Uint16(jpeg[p+2:]))
		if length < 2 {
			return
		}
		end := p + 2 + length
		seg := segment{marker: marker, end: end}
		if end <= len(jpeg) {
			seg.payload = jpeg[p+4 : end]
		}
		if !fn(seg) {
			return
		}
		p = end
	}
}

func isJPEG(b []byte) bool {
	return len(b) >= 2 && b[0] == markerPrefix && b[1] == markerSOI
}

// ExifSegment returns the payload of the first APP1 segment that carries
// Exif, or false when there is none.
func ExifSegment(jpeg []byte) ([]byte, bool) {
	if !isJPEG(jpeg) {
		return nil, false
	}
	var found []byte
	segments(jpeg, func(s segment) bool {
		if s.marker == markerAPP1 && bytes.HasPrefix(s.payload, ExifMarker) {
			found = s.payload
			return false
		}
		return true
	})
	return found, found != nil
}

// Splice inserts payload as an APP1 segment after the leading APP0
// segments of jpeg. It returns jpeg itself when jpeg is not a JPEG, the
// payload is not an Exif payload or does not fit in one segment, or the
// stream already has an Exif APP1 segment.
func Splice(jpeg, payload []byte) []byte {
	if !isJPEG(jpeg) {
		return jpeg
	}
	if len(payload) < minPayloadSize || !bytes.HasPrefix(payload, ExifMarker) {
		return jpeg
	}
	segLen := len(payload) + 2
	if segLen > maxSegmentLen {
		return jpeg
	}
	if _, exists := ExifSegment(jpeg); exists {
		return jpeg
	}

	insertAt := 2
	segments(jpeg, func(s segment) bool {
		if s.marker != markerAPP0 || s.end > len(jpeg) {
			return false
		}
		insertAt = s.end
		return true
	})

	out := make([]byte, 0, len(jpeg)+4+len(payload))
	out = append(out, jpeg[:insertAt]...)
	out = append(out, markerPrefix, markerAPP1, byte(segLen>>8), byte(segLen))
	out = append(out, payload...)
	return append(out, jpeg[insertAt:]...)
}
