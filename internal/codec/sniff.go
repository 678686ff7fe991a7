package codec

import (
	"bytes"
	"encoding/binary"
)

// heifBrands are the ftyp major brands libheif decodes as still images.
var heifBrands = map[string]bool{
	"heic": true,
	"heix": true,
	"hevc": true,
	"hevx": true,
	"heim": true,
	"heis": true,
	"mif1": true,
	"msf1": true,
}

// IsHEIF reports whether header starts with an ftyp box naming a HEIF
// brand, either as major brand or among the first compatible brands.
func IsHEIF(header []byte) bool {
	if len(header) < 12 || !bytes.Equal(header[4:8], []byte("ftyp")) {
		return false
	}
	if heifBrands[string(header[8:12])] {
		return true
	}

	// Compatible brands follow the 4-byte minor version.
	end := int(binary.BigEndian.Uint32(header))
	if end > len(header) {
		end = len(header)
	}
	for p := 16; p+4 <= end; p += 4 {
		if heifBrands[string(header[p:p+4])] {
			return true
		}
	}
	return false
}
