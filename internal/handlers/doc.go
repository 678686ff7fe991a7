// Package handlers provides the HTTP handlers of the converter service.
//
// It includes handlers for:
//   - The batch API: queueing files, per-item overrides, global settings,
//     status, per-item downloads and the ZIP archive
//   - Object URLs under /blob/ that stay valid until revoked
//   - The stateless single-shot convert endpoint
//   - Health, readiness, version and metrics
package handlers
