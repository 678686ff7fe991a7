package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var (
	// ErrNotExif is returned by Summarize for payloads without the Exif marker.
	ErrNotExif = errors.New("metadata: payload is not an Exif record")

	// ErrMalformedExif is returned when a directory entry or offset points
	// outside the TIFF stream.
	ErrMalformedExif = errors.New("metadata: malformed Exif directory")
)

// Summary is the subset of Exif tags reported back to clients so they can
// see what was carried into the output.
type Summary struct {
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	Software    string    `json:"software,omitempty"`
	Orientation int       `json:"orientation,omitempty"`
	TakenAt     time.Time `json:"takenAt,omitzero"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	HasGPS      bool      `json:"hasGps"`
	Bytes       int       `json:"bytes"`
}

// Summarize decodes an APP1 Exif payload and extracts the common camera
// tags. Missing tags are left at their zero value.
func Summarize(payload []byte) (*Summary, error) {
	if !bytes.HasPrefix(payload, ExifMarker) {
		return nil, ErrNotExif
	}

	tiff := payload[len(ExifMarker):]
	if err := checkTIFF(tiff); err != nil {
		return nil, err
	}

	x, err := exif.Decode(bytes.NewReader(tiff))
	if err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}

	s := &Summary{Bytes: len(payload)}
	s.Make = stringTag(x, exif.Make)
	s.Model = stringTag(x, exif.Model)
	s.Software = stringTag(x, exif.Software)
	s.Orientation = intTag(x, exif.Orientation)
	s.Width = intTag(x, exif.PixelXDimension)
	s.Height = intTag(x, exif.PixelYDimension)

	if dt, err := x.DateTime(); err == nil {
		s.TakenAt = dt
	}
	if _, _, err := x.LatLong(); err == nil {
		s.HasGPS = true
	}

	return s, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	v, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return v
}

func intTag(x *exif.Exif, name exif.FieldName) int {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// TIFF field type sizes in bytes, indexed by type code.
var tiffTypeSize = [...]uint64{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8}

// Tags whose value is the offset of a nested IFD.
var subIFDTags = map[uint16]bool{
	0x8769: true, // Exif
	0x8825: true, // GPS
	0xA005: true, // Interoperability
}

const maxIFDs = 16

// checkTIFF walks every IFD goexif would load and rejects entries whose
// declared size does not fit in the stream. goexif allocates by the
// declared count before reading, so an inconsistent count can exhaust
// memory.
func checkTIFF(tiff []byte) error {
	if len(tiff) < 8 {
		return fmt.Errorf("%w: short header", ErrMalformedExif)
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w: bad byte order", ErrMalformedExif)
	}
	if order.Uint16(tiff[2:]) != 42 {
		return fmt.Errorf("%w: bad magic", ErrMalformedExif)
	}

	size := uint64(len(tiff))
	pending := []uint64{uint64(order.Uint32(tiff[4:]))}
	seen := map[uint64]bool{}

	for len(pending) > 0 {
		off := pending[0]
		pending = pending[1:]
		if off == 0 {
			continue
		}
		if seen[off] {
			return fmt.Errorf("%w: directory loop at %d", ErrMalformedExif, off)
		}
		if len(seen) == maxIFDs {
			return fmt.Errorf("%w: too many directories", ErrMalformedExif)
		}
		seen[off] = true

		if off+2 > size {
			return fmt.Errorf("%w: directory at %d out of range", ErrMalformedExif, off)
		}
		n := uint64(order.Uint16(tiff[off:]))
		end := off + 2 + n*12
		if end+4 > size {
			return fmt.Errorf("%w: directory at %d truncated", ErrMalformedExif, off)
		}

		for e := off + 2; e < end; e += 12 {
			tag := order.Uint16(tiff[e:])
			typ := order.Uint16(tiff[e+2:])
			count := uint64(order.Uint32(tiff[e+4:]))
			if int(typ) >= len(tiffTypeSize) || tiffTypeSize[typ] == 0 {
				return fmt.Errorf("%w: tag 0x%04x has unknown type %d", ErrMalformedExif, tag, typ)
			}
			// count is 32 bits and sizes are at most 8, so this cannot wrap.
			valLen := count * tiffTypeSize[typ]
			if valLen > size {
				return fmt.Errorf("%w: tag 0x%04x declares %d bytes", ErrMalformedExif, tag, valLen)
			}
			if valLen > 4 {
				if valOff := uint64(order.Uint32(tiff[e+8:])); valOff+valLen > size {
					return fmt.Errorf("%w: tag 0x%04x value out of range", ErrMalformedExif, tag)
				}
			}
			if subIFDTags[tag] {
				pending = append(pending, uint64(order.Uint32(tiff[e+8:])))
			}
		}
		pending = append(pending, uint64(order.Uint32(tiff[end:])))
	}
	return nil
}
