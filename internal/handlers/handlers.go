package handlers

import (
	"time"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/startup"
	"heic-to-jpg/internal/worker"
)

// Handlers serves the batch API and the single-shot convert endpoint.
type Handlers struct {
	batch     *batch.Controller
	converter *worker.Converter

	// runtimeCheck reports whether the decoder runtime is usable.
	runtimeCheck func() error

	archiveName    string
	maxUploadBytes int64
	startTime      time.Time
}

// New creates the handlers. converter serves /api/convert and shares no
// state with ctrl. runtimeCheck may be nil.
func New(ctrl *batch.Controller, converter *worker.Converter, runtimeCheck func() error, config *startup.Config) *Handlers {
	return &Handlers{
		batch:          ctrl,
		converter:      converter,
		runtimeCheck:   runtimeCheck,
		archiveName:    config.ArchiveName,
		maxUploadBytes: config.MaxUploadBytes,
		startTime:      time.Now(),
	}
}

func (h *Handlers) runtimeErr() error {
	if h.runtimeCheck == nil {
		return nil
	}
	return h.runtimeCheck()
}
