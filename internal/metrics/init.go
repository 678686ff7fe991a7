package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, source := range []string{"batch", "single"} {
		for _, status := range []string{"success", "error"} {
			ConversionsTotal.WithLabelValues(source, status)
		}
		ConversionDuration.WithLabelValues(source)
	}

	for _, stage := range []string{"decode", "encode"} {
		ConversionStageDuration.WithLabelValues(stage)
	}

	for _, dir := range []string{"in", "out"} {
		ConversionBytes.WithLabelValues(dir)
	}

	for _, outcome := range []string{"retained", "absent", "disabled"} {
		MetadataOutcomesTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"pending", "processing", "done", "error"} {
		BatchItems.WithLabelValues(status)
	}

	for _, result := range []string{"accepted", "skipped"} {
		BatchItemsAddedTotal.WithLabelValues(result)
	}

	for _, action := range []string{"apply", "requeue", "clear"} {
		BatchOverridesTotal.WithLabelValues(action)
	}

	for _, status := range []string{"success", "error", "busy", "empty"} {
		ArchiveGenerationsTotal.WithLabelValues(status)
	}

	for _, event := range []string{"create", "write", "rename", "remove", "enqueued", "ignored"} {
		InboxEventsTotal.WithLabelValues(event)
	}

	for _, op := range []string{"read", "write"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemOperationDuration.WithLabelValues(op)
	}
}
