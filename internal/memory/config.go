package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"heic-to-jpg/internal/logging"
)

const (
	// DefaultMemoryRatio is the share of the container limit given to the Go
	// heap. libvips and libheif allocate decode buffers in C memory, which
	// GOMEMLIMIT does not see, so the reserve is larger than for pure Go.
	DefaultMemoryRatio = 0.75
)

// ConfigResult describes how the soft memory limit was configured.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT", or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets the Go soft memory limit. Call it early in main.
//
// Environment variables:
//   - GOMEMLIMIT: honoured as-is by the runtime and only reported here
//   - MEMORY_LIMIT: container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the heap (default 0.75)
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	result, err := limitFromContainer(os.Getenv("MEMORY_LIMIT"), os.Getenv("MEMORY_RATIO"))
	if err != nil {
		logging.Warn("Memory limit not configured: %v", err)
		return ConfigResult{Source: "none"}
	}
	if !result.Configured {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return result
	}

	debug.SetMemoryLimit(result.GoMemLimit)
	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.ContainerLimit))
	return result
}

// limitFromContainer computes the heap limit from the raw MEMORY_LIMIT and
// MEMORY_RATIO values. An empty limit is not an error.
func limitFromContainer(limitStr, ratioStr string) (ConfigResult, error) {
	if limitStr == "" {
		return ConfigResult{Source: "none"}, nil
	}

	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return ConfigResult{}, fmt.Errorf("parse MEMORY_LIMIT %q: %w", limitStr, err)
	}
	if limit <= 0 {
		return ConfigResult{}, fmt.Errorf("MEMORY_LIMIT %d must be positive", limit)
	}

	ratio := DefaultMemoryRatio
	if ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", ratioStr, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0], using default %.2f", ratioStr, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: limit,
		GoMemLimit:     int64(float64(limit) * ratio),
		Ratio:          ratio,
	}, nil
}

// formatBytes renders b with binary units (KiB, MiB, ...).
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
