// Package codec wraps the pixel-level capabilities the converter treats as
// black boxes: HEIF decoding through libvips (govips) and JPEG encoding
// through imaging.
//
// Decoders produce Pixels, a tightly packed non-premultiplied RGBA buffer.
// Encoders take Pixels and a quality in the range 0..1. JPEG carries no
// alpha channel, so JPEGEncoder composites transparent pixels onto a
// background color before encoding.
//
// libvips is started lazily on the first decode and shut down with
// ShutdownVips when the process exits.
package codec
