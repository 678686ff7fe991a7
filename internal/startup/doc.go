// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - DEFAULT_QUALITY: Initial batch JPEG quality, 0.0-1.0 (default: 0.8)
//   - KEEP_METADATA: Initial batch metadata retention (default: true)
//   - MAX_UPLOAD_MB: Request body limit for uploads (default: 256)
//   - ARCHIVE_NAME: Download name for the ZIP archive (default: heic-to-jpg.zip)
//   - WATCH_DIR: Directory watched for new HEIC/HEIF files (optional)
//   - OUTPUT_DIR: Directory converted files are saved to (optional)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// A WATCH_DIR or OUTPUT_DIR that cannot be created or written disables the
// corresponding feature instead of failing startup.
//
// # Build Information
//
// Version, Commit and BuildTime are set at build time via -ldflags:
//
//	go build -ldflags "-X heic-to-jpg/internal/startup.Version=1.0.0"
package startup
