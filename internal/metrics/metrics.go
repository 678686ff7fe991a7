package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heic_to_jpg_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_conversions_total",
			Help: "Total number of finished conversions by source (batch/single) and status",
		},
		[]string{"source", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heic_to_jpg_conversion_duration_seconds",
			Help:    "Wall time from dispatch to result for one item",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"source"},
	)

	ConversionStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heic_to_jpg_conversion_stage_duration_seconds",
			Help:    "Duration of the decode and encode stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"stage"},
	)

	ConversionBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_conversion_bytes_total",
			Help: "Bytes read from sources and written to outputs",
		},
		[]string{"direction"}, // "in", "out"
	)

	FallbackEncodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_fallback_encodes_total",
			Help: "Results encoded by the controller because the worker returned raw pixels",
		},
	)

	MetadataOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_metadata_outcomes_total",
			Help: "Exif handling per conversion (retained, absent, disabled)",
		},
		[]string{"outcome"},
	)
)

// Batch metrics
var (
	BatchItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_batch_items",
			Help: "Items in the current batch by status",
		},
		[]string{"status"},
	)

	BatchOutputBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_batch_output_bytes",
			Help: "Total output bytes of finished items in the current batch",
		},
	)

	BatchItemsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_batch_items_added_total",
			Help: "Files offered to the batch, by whether they were accepted",
		},
		[]string{"result"}, // "accepted", "skipped"
	)

	BatchResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_batch_resets_total",
			Help: "Total number of full batch resets",
		},
	)

	BatchOverridesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_batch_overrides_total",
			Help: "Per-item settings overrides by action (apply, requeue, clear)",
		},
		[]string{"action"},
	)

	ObjectURLsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_object_urls_live",
			Help: "Object URLs currently registered and not yet revoked",
		},
	)
)

// Worker metrics
var (
	WorkerStartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_worker_starts_total",
			Help: "Times the conversion worker was started",
		},
	)

	WorkerCrashesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_worker_crashes_total",
			Help: "Times the conversion worker crashed",
		},
	)

	WorkerStaleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_worker_stale_responses_total",
			Help: "Worker responses discarded because their request was cancelled",
		},
	)
)

// Archive metrics
var (
	ArchiveGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_archive_generations_total",
			Help: "Archive generations by status",
		},
		[]string{"status"},
	)

	ArchiveSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_archive_size_bytes",
			Help: "Size of the most recently generated archive",
		},
	)
)

// Watch folder metrics
var (
	InboxEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_inbox_events_total",
			Help: "Watch folder events by type",
		},
		[]string{"event"},
	)

	InboxErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_inbox_errors_total",
			Help: "Errors reported by the watch folder",
		},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heic_to_jpg_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem reads and writes including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_go_memalloc_bytes",
			Help: "Current Go heap allocation in bytes",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heic_to_jpg_memory_paused",
			Help: "1 while dispatch is paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heic_to_jpg_memory_pauses_total",
			Help: "Times dispatch was paused for memory pressure",
		},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "heic_to_jpg_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
