// Package metadata carries Exif records from HEIF containers into JPEG
// output.
//
// HEIF stores Exif as an item whose bytes come in one of three layouts.
// Normalize turns any of them into the APP1 payload form ("Exif\0\0"
// followed by the TIFF stream). Splice inserts that payload into a JPEG
// byte stream after the JFIF header, leaving the input untouched when the
// stream already carries Exif or the payload does not qualify.
//
// All functions here are best-effort helpers: they report absence through
// boolean or error results and never panic on malformed input.
package metadata
