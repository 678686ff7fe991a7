package codec

import (
	"errors"
	"fmt"
	"sync"

	"heic-to-jpg/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// ErrNotHEIF is returned when the source is not a HEIF container.
var ErrNotHEIF = errors.New("source is not a HEIC/HEIF image")

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// vipsLogLevel maps the application log level onto the most verbose vips
// level worth forwarding.
func vipsLogLevel(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelInfo:
		return vips.LogLevelWarning
	case logging.LevelWarn:
		return vips.LogLevelError
	default:
		return vips.LogLevelCritical
	}
}

func vipsLogHandler(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips starts libvips once per process. Later calls are no-ops until
// ShutdownVips. A failed start is reported as an error rather than a panic.
func InitVips() (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start libvips: %v", r)
		}
	}()

	// Logging must be configured before Startup.
	vips.LoggingSettings(vipsLogHandler, vipsLogLevel(logging.GetLevel()))

	// One decode at a time; a full-resolution HEIC already needs
	// width*height*4 bytes of pixel memory.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      16 * 1024 * 1024,
		MaxCacheSize:     16,
	})

	vipsInitialized = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips if it was started.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsInitialized reports whether libvips has been started.
func VipsInitialized() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsInitialized
}

// VipsDecoder decodes HEIF sources with libvips and libheif.
type VipsDecoder struct{}

// NewVipsDecoder returns a decoder. libvips starts on first use.
func NewVipsDecoder() *VipsDecoder {
	return &VipsDecoder{}
}

// Decode implements Decoder. The first page is decoded, converted to sRGB
// and returned as 8-bit RGBA.
func (d *VipsDecoder) Decode(src []byte) (*Pixels, error) {
	if !IsHEIF(src) {
		return nil, ErrNotHEIF
	}

	if err := InitVips(); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(src)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if ref.Format() != vips.ImageTypeHEIF {
		return nil, ErrNotHEIF
	}

	if err := ref.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, fmt.Errorf("vips colorspace: %w", err)
	}
	if !ref.HasAlpha() {
		if err := ref.AddAlpha(); err != nil {
			return nil, fmt.Errorf("vips add alpha: %w", err)
		}
	}
	if err := ref.Cast(vips.BandFormatUchar); err != nil {
		return nil, fmt.Errorf("vips cast: %w", err)
	}

	raw, err := ref.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("vips read pixels: %w", err)
	}

	p := &Pixels{Width: ref.Width(), Height: ref.Height(), RGBA: raw}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("vips output: %w", err)
	}

	logging.Debug("Decoded HEIF %dx%d (%d source bytes)", p.Width, p.Height, len(src))
	return p, nil
}
