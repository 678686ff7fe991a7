package worker

import (
	"errors"
	"fmt"
	"math"
	"time"

	"heic-to-jpg/internal/codec"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metadata"
	"heic-to-jpg/internal/metrics"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 0.8

var (
	// ErrDecode wraps failures to decode the source image.
	ErrDecode = errors.New("decode failed")

	// ErrEncode wraps failures to encode the output image.
	ErrEncode = errors.New("encode failed")
)

// Settings controls a single conversion.
type Settings struct {
	Quality      float64 `json:"quality"`
	KeepMetadata bool    `json:"keepMetadata"`
}

// DefaultSettings returns quality 0.8 with metadata retention on.
func DefaultSettings() Settings {
	return Settings{Quality: DefaultQuality, KeepMetadata: true}
}

// Clamp returns s with Quality limited to 0..1. NaN becomes the default.
func (s Settings) Clamp() Settings {
	switch {
	case math.IsNaN(s.Quality):
		s.Quality = DefaultQuality
	case s.Quality < 0:
		s.Quality = 0
	case s.Quality > 1:
		s.Quality = 1
	}
	return s
}

// Result is the tagged outcome of a conversion. Exactly one of these holds:
//   - Err != nil: the item failed.
//   - Output != nil: the encoded JPEG, with metadata already spliced in.
//   - Raw != nil: pixels the caller must encode itself because no encoder
//     was available; Metadata holds the payload to splice afterwards.
type Result struct {
	Output   []byte
	Raw      *codec.Pixels
	Metadata []byte
	Summary  *metadata.Summary
	Err      error
}

// OK reports whether the conversion succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// NeedsEncode reports whether the caller has to encode Raw.
func (r Result) NeedsEncode() bool {
	return r.Err == nil && r.Output == nil && r.Raw != nil
}

// Metadata outcomes recorded per conversion.
const (
	MetadataRetained = "retained"
	MetadataAbsent   = "absent"
	MetadataDisabled = "disabled"
)

// Converter turns HEIF bytes into JPEG bytes. A nil Encoder means encoding
// is unavailable here and results carry raw pixels instead.
type Converter struct {
	Decoder codec.Decoder
	Encoder codec.Encoder
}

// Convert runs one conversion.
func (c *Converter) Convert(src []byte, s Settings) Result {
	s = s.Clamp()

	start := time.Now()
	pixels, err := c.Decoder.Decode(src)
	metrics.ConversionStageDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	var payload []byte
	var summary *metadata.Summary
	if s.KeepMetadata {
		payload, summary = extractMetadata(src)
	} else {
		metrics.MetadataOutcomesTotal.WithLabelValues(MetadataDisabled).Inc()
	}

	if c.Encoder == nil {
		return Result{Raw: pixels, Metadata: payload, Summary: summary}
	}

	start = time.Now()
	out, err := c.Encoder.Encode(pixels, s.Quality)
	metrics.ConversionStageDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrEncode, err)}
	}

	if payload != nil {
		spliced := metadata.Splice(out, payload)
		if len(spliced) == len(out) {
			logging.Debug("Exif payload of %d bytes not spliced", len(payload))
			payload, summary = nil, nil
		}
		out = spliced
	}
	return Result{Output: out, Metadata: payload, Summary: summary}
}

// extractMetadata pulls the Exif record out of src. Every failure here is
// swallowed; the conversion continues without metadata.
func extractMetadata(src []byte) ([]byte, *metadata.Summary) {
	payload, ok := metadata.ExtractFromHEIF(src)
	if !ok {
		metrics.MetadataOutcomesTotal.WithLabelValues(MetadataAbsent).Inc()
		logging.Debug("No usable Exif item in source (%d bytes)", len(src))
		return nil, nil
	}
	metrics.MetadataOutcomesTotal.WithLabelValues(MetadataRetained).Inc()

	summary, err := metadata.Summarize(payload)
	if err != nil {
		logging.Debug("Exif summary unavailable: %v", err)
		return payload, nil
	}
	return payload, summary
}
