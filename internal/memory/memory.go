package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metrics"
)

// Config holds the dispatch gate thresholds.
type Config struct {
	// LimitBytes is the reference limit; 0 means use GOMEMLIMIT.
	LimitBytes int64

	// PauseAt is the usage ratio at which dispatch pauses.
	PauseAt float64

	// ResumeAt is the usage ratio below which dispatch resumes.
	ResumeAt float64

	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig pauses at 85% of the limit and resumes below 70%.
func DefaultConfig() Config {
	return Config{
		PauseAt:       0.85,
		ResumeAt:      0.7,
		CheckInterval: 2 * time.Second,
	}
}

// Monitor samples heap usage and holds back new conversions while usage is
// above the pause threshold. With no limit configured it never pauses.
type Monitor struct {
	config   Config
	limit    int64
	sample   func() uint64
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	current  uint64
	paused   bool
	resumeCh chan struct{}
}

// NewMonitor creates a monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no limit configured, dispatch is never paused")
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		sample:   heapAlloc,
		stopChan: make(chan struct{}),
		resumeCh: make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases any waiters.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.sample()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case !m.paused && usage >= m.config.PauseAt:
		logging.Warn("Memory at %.1f%% of limit, pausing conversions", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.ResumeAt:
		logging.Info("Memory at %.1f%% of limit, resuming conversions", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumeCh)
		m.resumeCh = make(chan struct{})
	}
}

// Wait blocks while dispatch is paused. It returns ctx.Err() if ctx ends
// first, and nil once conversions may proceed or the monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	ch := m.resumeCh
	m.mu.Unlock()

	logging.Debug("Waiting for memory pressure to ease before next conversion")
	select {
	case <-ch:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether dispatch is currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a ratio of the limit, or 0
// when no limit is configured.
func (m *Monitor) Usage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit <= 0 {
		return 0
	}
	return float64(m.current) / float64(m.limit)
}
