// Package middleware provides HTTP middleware for the converter service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path labels
//   - gzip compression of JSON responses
package middleware
