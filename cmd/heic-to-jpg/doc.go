// Package main is the entry point of the HEIC to JPG conversion service.
//
// The service converts HEIC/HEIF photos to JPEG. It exposes two ways in:
//
//  1. A batch API under /api/files. Uploaded files are queued and converted
//     one at a time by a background worker. Each result is published under
//     an object URL (/blob/{token}) until the batch is reset, can be
//     re-converted with per-item settings, and is added to a ZIP archive
//     served from /api/archive.
//  2. A stateless single-shot endpoint, POST /api/convert, that returns the
//     JPEG in the response.
//
// Optionally a watch folder (WATCH_DIR) feeds the batch queue, and
// converted files are saved to OUTPUT_DIR.
//
// # Application Lifecycle
//
//  1. Memory Configuration: sets GOMEMLIMIT from the environment
//  2. Configuration Loading: reads environment variables, prepares directories
//  3. Codec Initialization: starts libvips for HEIF decoding
//  4. Component Initialization: memory monitor, batch controller, watch
//     folder, metrics collector
//  5. HTTP Server Setup: routes, middleware, API and metrics servers
//  6. Graceful Shutdown on SIGINT/SIGTERM
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests
//  2. Stop the watch folder
//  3. Close the batch controller (in-flight work is abandoned, object URLs revoked)
//  4. Stop the metrics collector and memory monitor
//  5. Shut down the metrics server
//  6. Shut down libvips
//
// # Build Requirements
//
// CGO with libvips built against libheif is required:
//
//	go build -o heic-to-jpg ./cmd/heic-to-jpg
//
// See package startup for the environment variables.
package main
