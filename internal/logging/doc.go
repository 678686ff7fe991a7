// Package logging provides printf-style leveled logging for the converter
// service and the batch CLI.
//
// It supports the following log levels:
//   - DEBUG: per-item decode, metadata and dispatch details
//   - INFO: startup, batch and server lifecycle messages
//   - WARN: recoverable problems such as a worker restart
//   - ERROR: failures surfaced to clients
//   - FATAL: errors that terminate the process
//
// The level comes from LOG_LEVEL, or DEBUG=true to force debug output.
// SetLevel overrides it at runtime.
package logging
