// Package metrics provides Prometheus instrumentation for the HEIC to JPEG
// converter.
//
// All metrics are registered with the default registry through promauto and
// prefixed with "heic_to_jpg_".
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Conversion Metrics
//   - ConversionsTotal: finished conversions by source (batch/single) and status
//   - ConversionDuration: dispatch-to-result time per item
//   - ConversionStageDuration: decode and encode stage time
//   - ConversionBytes: bytes in and out
//   - FallbackEncodesTotal: raw results encoded outside the worker
//   - MetadataOutcomesTotal: Exif retained, absent, or disabled
//
// ## Batch Metrics
//   - BatchItems: items by status, refreshed by the Collector
//   - BatchOutputBytes, BatchItemsAddedTotal, BatchResetsTotal, BatchOverridesTotal
//   - ObjectURLsLive: object URLs not yet revoked
//
// ## Worker Metrics
//   - WorkerStartsTotal, WorkerCrashesTotal, WorkerStaleResponsesTotal
//
// ## Archive, Watch Folder, Filesystem and Memory Metrics
//   - ArchiveGenerationsTotal, ArchiveSizeBytes
//   - InboxEventsTotal, InboxErrorsTotal
//   - FilesystemRetryAttempts, FilesystemRetryFailures, FilesystemOperationDuration
//   - GoMemLimit, GoMemAllocBytes, MemoryUsageRatio, MemoryPaused, MemoryPausesTotal
//
// # Collector
//
// [Collector] polls a [StatsProvider] (the batch controller) on an interval
// and updates the batch and memory gauges:
//
//	collector := metrics.NewCollector(controller, 15*time.Second)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Conversion failure ratio:
//
//	sum(rate(heic_to_jpg_conversions_total{status="error"}[5m])) /
//	sum(rate(heic_to_jpg_conversions_total[5m]))
//
// Share of conversions that kept Exif:
//
//	rate(heic_to_jpg_metadata_outcomes_total{outcome="retained"}[1h]) /
//	sum(rate(heic_to_jpg_metadata_outcomes_total[1h]))
//
// P95 decode time:
//
//	histogram_quantile(0.95, sum(rate(heic_to_jpg_conversion_stage_duration_seconds_bucket{stage="decode"}[5m])) by (le))
package metrics
