package codec

import (
	"fmt"
	"image"
)

// Pixels is a decoded image: Width*Height pixels, 4 bytes each, rows packed
// without padding, non-premultiplied RGBA.
type Pixels struct {
	Width  int
	Height int
	RGBA   []byte
}

// Decoder turns source bytes into pixels. Only the first image of a
// multi-image container is decoded.
type Decoder interface {
	Decode(src []byte) (*Pixels, error)
}

// Encoder turns pixels into an encoded image at quality 0..1.
type Encoder interface {
	Encode(p *Pixels, quality float64) ([]byte, error)
}

// Validate checks that the buffer matches the dimensions.
func (p *Pixels) Validate() error {
	if p == nil {
		return fmt.Errorf("nil pixel buffer")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", p.Width, p.Height)
	}
	if want := p.Width * p.Height * 4; len(p.RGBA) != want {
		return fmt.Errorf("pixel buffer is %d bytes, want %d for %dx%d", len(p.RGBA), want, p.Width, p.Height)
	}
	return nil
}

// NRGBA wraps the buffer as an image without copying.
func (p *Pixels) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.RGBA,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}
