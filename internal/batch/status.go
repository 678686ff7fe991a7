package batch

import (
	"fmt"
	"time"

	"heic-to-jpg/internal/metrics"
)

// Stats summarizes the batch.
type Stats struct {
	Success    int   `json:"success"`
	Failed     int   `json:"failed"`
	Pending    int   `json:"pending"`
	Processing int   `json:"processing"`
	TotalBytes int64 `json:"totalBytes"`
}

func (c *Controller) statsLocked() Stats {
	var s Stats
	for _, it := range c.items {
		switch it.Status {
		case StatusDone:
			s.Success++
			s.TotalBytes += it.BytesOut
		case StatusError:
			s.Failed++
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		}
	}
	return s
}

// Stats returns the current counts.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// GetStats implements metrics.StatsProvider.
func (c *Controller) GetStats() metrics.Stats {
	s := c.Stats()
	return metrics.Stats{
		Pending:     s.Pending,
		Processing:  s.Processing,
		Done:        s.Success,
		Failed:      s.Failed,
		OutputBytes: s.TotalBytes,
		ObjectURLs:  c.agg.LiveURLs(),
	}
}

// StatusText is the one-line batch status shown to users.
func (c *Controller) StatusText() string {
	c.mu.Lock()
	s := c.statsLocked()
	total := len(c.items)
	processing := c.processing
	c.mu.Unlock()

	if processing {
		return fmt.Sprintf("Processing %d/%d...", s.Success+s.Failed+1, total)
	}
	if s.Success == 0 && s.Failed == 0 {
		return "Ready"
	}
	text := fmt.Sprintf("Done: %d converted, %d failed.", s.Success, s.Failed)
	if s.Success > 0 {
		text += fmt.Sprintf(" Total output: %s.", FormatBytes(s.TotalBytes))
	}
	return text
}

// QueuedText describes the outcome of AddFiles.
func QueuedText(count, skipped int) string {
	switch {
	case count == 0:
		return "No HEIC/HEIF files detected."
	case skipped > 0:
		return fmt.Sprintf("Queued %d (skipped %d).", count, skipped)
	default:
		return fmt.Sprintf("Queued %d.", count)
	}
}

// NoticeKind classifies batch-level failures.
type NoticeKind string

// Batch-level failures. Item failures are reported on the item instead.
const (
	NoticeWorkerCrashed NoticeKind = "worker_crashed"
	NoticeArchiveFailed NoticeKind = "archive_failed"
	NoticeRuntimeFailed NoticeKind = "runtime_failed"
)

var noticeMessages = map[NoticeKind]string{
	NoticeWorkerCrashed: "Worker crashed.",
	NoticeArchiveFailed: "ZIP generation failed.",
	NoticeRuntimeFailed: "Failed to load converter runtime.",
}

// Notice is the most recent batch-level failure.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Details string     `json:"details,omitempty"`
	At      time.Time  `json:"at"`
}

func (c *Controller) setNotice(kind NoticeKind, err error) {
	n := &Notice{Kind: kind, Message: noticeMessages[kind], At: time.Now()}
	if err != nil {
		n.Details = err.Error()
	}
	c.mu.Lock()
	c.notice = n
	c.mu.Unlock()
}

// Notice returns the latest batch-level failure, or nil. It is cleared by
// Reset.
func (c *Controller) Notice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}
