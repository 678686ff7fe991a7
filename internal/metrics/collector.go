package metrics

import (
	"runtime"
	"runtime/debug"
	"time"

	"heic-to-jpg/internal/logging"
)

// StatsProvider reports the current batch counts.
type StatsProvider interface {
	GetStats() Stats
}

// Stats is a point-in-time view of the batch.
type Stats struct {
	Pending     int
	Processing  int
	Done        int
	Failed      int
	OutputBytes int64
	ObjectURLs  int
}

// Collector periodically copies batch and runtime stats into gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	collectMemoryMetrics()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	BatchItems.WithLabelValues("pending").Set(float64(stats.Pending))
	BatchItems.WithLabelValues("processing").Set(float64(stats.Processing))
	BatchItems.WithLabelValues("done").Set(float64(stats.Done))
	BatchItems.WithLabelValues("error").Set(float64(stats.Failed))
	BatchOutputBytes.Set(float64(stats.OutputBytes))
	ObjectURLsLive.Set(float64(stats.ObjectURLs))

	logging.Debug("Metrics collected: pending=%d, processing=%d, done=%d, failed=%d, urls=%d",
		stats.Pending, stats.Processing, stats.Done, stats.Failed, stats.ObjectURLs)
}

func collectMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}
}
