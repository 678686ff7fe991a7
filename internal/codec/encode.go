package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// JPEGEncoder encodes pixels as baseline JPEG.
type JPEGEncoder struct {
	// Background fills transparent areas. Nil means white.
	Background color.Color
}

// NewJPEGEncoder returns an encoder that flattens onto white.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{Background: color.White}
}

// Encode implements Encoder.
func (e *JPEGEncoder) Encode(p *Pixels, quality float64) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	bg := e.Background
	if bg == nil {
		bg = color.White
	}
	img := Flatten(p.NRGBA(), bg)

	var buf bytes.Buffer
	buf.Grow(p.Width * p.Height / 4)
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(quality))); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Flatten composites src over an opaque background.
func Flatten(src image.Image, bg color.Color) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// JPEGQuality maps a 0..1 quality onto the 1..100 scale used by JPEG
// encoders.
func JPEGQuality(q float64) int {
	if math.IsNaN(q) {
		q = 0
	}
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
