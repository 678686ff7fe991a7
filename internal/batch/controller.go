package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"heic-to-jpg/internal/codec"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metadata"
	"heic-to-jpg/internal/metrics"
	"heic-to-jpg/internal/results"
	"heic-to-jpg/internal/worker"
)

var (
	// ErrNotFound is returned for an unknown item ID.
	ErrNotFound = errors.New("item not found")

	// ErrBusy is returned by Archive while the queue is being processed.
	ErrBusy = errors.New("batch is still processing")

	// ErrEmpty is returned by Archive when no item has converted.
	ErrEmpty = errors.New("no converted files")

	// ErrRuntime wraps a failed converter runtime initialization.
	ErrRuntime = errors.New("converter runtime unavailable")

	errReadSource = errors.New("read source")
	errNoEncoder  = errors.New("no encoder for raw result")
)

// Gate holds back dispatch, typically while memory is under pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Options configures a Controller.
type Options struct {
	// Converter runs inside the worker. Required.
	Converter *worker.Converter

	// Encoder encodes raw results when the worker returns pixels.
	Encoder codec.Encoder

	// Defaults are the global settings at start and after Reset.
	// The zero value means worker.DefaultSettings().
	Defaults worker.Settings

	// Gate, if set, is waited on before each dispatch.
	Gate Gate

	// Init prepares the converter runtime. It runs on the first
	// ProcessQueue and again after a Reset; a failure is kept until then.
	Init func() error
}

// Controller owns the item queue of one batch and drives conversions one
// at a time through a worker.
type Controller struct {
	client  *worker.Client
	encoder codec.Encoder
	agg     *results.Aggregator
	gate    Gate
	init    func() error

	// OnItemDone is called after each successful conversion with the
	// item and its output. Set it before the first dispatch.
	OnItemDone func(Item, []byte)

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	initMu     sync.Mutex
	runtimeOK  bool
	runtimeErr error

	mu         sync.Mutex
	items      []*item
	byID       map[string]*item
	defaults   worker.Settings
	settings   worker.Settings
	generation uint64
	processing bool
	notice     *Notice
	closed     bool
}

// New creates a controller. No worker starts until the first dispatch.
func New(opts Options) *Controller {
	defaults := opts.Defaults
	if defaults == (worker.Settings{}) {
		defaults = worker.DefaultSettings()
	}
	defaults = defaults.Clamp()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:   worker.NewClient(opts.Converter),
		encoder:  opts.Encoder,
		agg:      results.NewAggregator(),
		gate:     opts.Gate,
		init:     opts.Init,
		ctx:      ctx,
		cancel:   cancel,
		byID:     make(map[string]*item),
		defaults: defaults,
		settings: defaults,
	}
	c.client.OnCrash = c.workerCrashed
	return c
}

// GlobalSettings returns the settings applied to items without override.
func (c *Controller) GlobalSettings() worker.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetGlobalSettings replaces the global settings. Items already dispatched
// are not affected. It returns the clamped value stored.
func (c *Controller) SetGlobalSettings(s worker.Settings) worker.Settings {
	s = s.Clamp()
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return s
}

// SetQuality changes only the global quality.
func (c *Controller) SetQuality(q float64) worker.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = worker.Settings{Quality: q, KeepMetadata: c.settings.KeepMetadata}.Clamp()
	return c.settings
}

// SetKeepMetadata changes only the global metadata flag.
func (c *Controller) SetKeepMetadata(keep bool) worker.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.KeepMetadata = keep
	return c.settings
}

// AddResult reports what AddFiles accepted.
type AddResult struct {
	Added   []Item `json:"added"`
	Skipped int    `json:"skipped"`
	Message string `json:"message"`
}

// AddFiles queues every HEIC-like source as a pending item and skips the
// rest. Output names are made unique against all items in the batch.
func (c *Controller) AddFiles(sources ...Source) AddResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	taken := make(map[string]bool, len(c.items)+len(sources))
	for _, it := range c.items {
		taken[it.OutputName] = true
	}

	res := AddResult{Added: []Item{}}
	for _, src := range sources {
		if src == nil || !IsHEICLike(src.Name(), contentTypeOf(src)) {
			res.Skipped++
			continue
		}
		it := &item{
			Item: Item{
				ID:         uuid.NewString(),
				SourceName: SanitizeName(src.Name()),
				OutputName: UniqueName(ToJPGName(src.Name()), taken),
				Status:     StatusPending,
				BytesIn:    src.Size(),
			},
			source: src,
		}
		c.items = append(c.items, it)
		c.byID[it.ID] = it
		res.Added = append(res.Added, it.snapshot())
	}

	metrics.BatchItemsAddedTotal.WithLabelValues("accepted").Add(float64(len(res.Added)))
	metrics.BatchItemsAddedTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	res.Message = QueuedText(len(res.Added), res.Skipped)
	logging.Info("Queued %d files (%d skipped)", len(res.Added), res.Skipped)
	return res
}

// ensureRuntime runs Init once per reset cycle.
func (c *Controller) ensureRuntime() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.runtimeOK || c.init == nil {
		return nil
	}
	if c.runtimeErr != nil {
		return c.runtimeErr
	}
	if err := c.init(); err != nil {
		c.runtimeErr = fmt.Errorf("%w: %w", ErrRuntime, err)
		c.setNotice(NoticeRuntimeFailed, err)
		logging.Error("Converter runtime failed to start: %v", err)
		return c.runtimeErr
	}
	c.runtimeOK = true
	return nil
}

// ProcessQueue converts pending items one at a time, in the order they
// became pending, until none remain, the batch is reset, or ctx ends. It
// returns at once if another call is already processing.
func (c *Controller) ProcessQueue(ctx context.Context) error {
	if err := c.ensureRuntime(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.processing || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.processing = true
	gen := c.generation
	c.mu.Unlock()

	stop := func() {
		c.mu.Lock()
		if c.generation == gen {
			c.processing = false
		}
		c.mu.Unlock()
	}

	for {
		if err := ctx.Err(); err != nil {
			stop()
			return err
		}
		if c.gate != nil {
			if err := c.gate.Wait(ctx); err != nil {
				stop()
				return err
			}
		}

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return nil
		}
		it := c.nextPendingLocked()
		if it == nil {
			c.processing = false
			c.mu.Unlock()
			return nil
		}
		it.Status = StatusProcessing
		it.Error = ""
		settings := c.settings
		if it.Override != nil {
			settings = *it.Override
		}
		c.mu.Unlock()

		c.dispatch(ctx, gen, it, settings)

		// Let request handlers and other goroutines in between items.
		runtime.Gosched()
	}
}

// Kick runs ProcessQueue in the background for the controller's lifetime.
func (c *Controller) Kick() {
	c.loops.Add(1)
	go func() {
		defer c.loops.Done()
		if err := c.ProcessQueue(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("Batch processing stopped: %v", err)
		}
	}()
}

// Wait blocks until every loop started by Kick has returned.
func (c *Controller) Wait() {
	c.loops.Wait()
}

func (c *Controller) nextPendingLocked() *item {
	for _, it := range c.items {
		if it.Status == StatusPending {
			return it
		}
	}
	return nil
}

// outcome is the result of one dispatch.
type outcome struct {
	output  []byte
	summary *metadata.Summary
	err     error
}

func (c *Controller) dispatch(ctx context.Context, gen uint64, it *item, s worker.Settings) {
	start := time.Now()

	src, err := it.source.Open()
	if err != nil {
		c.finish(gen, it, outcome{err: fmt.Errorf("%w: %w", errReadSource, err)}, start)
		return
	}
	metrics.ConversionBytes.WithLabelValues("in").Add(float64(len(src)))

	res, err := c.client.Process(ctx, it.ID, src, s)
	switch {
	case errors.Is(err, worker.ErrReset):
		// A reset from an earlier generation can still reject a request of
		// this one; requeue is a no-op when the item itself was cleared.
		logging.Debug("Request for %s rejected by worker reset", it.SourceName)
		c.requeue(gen, it)
		return
	case errors.Is(err, worker.ErrClosed):
		logging.Debug("Discarding %s: controller closed", it.SourceName)
		return
	case err != nil && ctx.Err() != nil:
		c.requeue(gen, it)
		return
	case err != nil:
		c.finish(gen, it, outcome{err: err}, start)
		return
	case res.Err != nil:
		c.finish(gen, it, outcome{err: res.Err}, start)
		return
	}

	out, summary := res.Output, res.Summary
	if res.NeedsEncode() {
		out, summary, err = c.encodeRaw(res, s)
		if err != nil {
			c.finish(gen, it, outcome{err: err}, start)
			return
		}
	}
	if len(out) == 0 {
		c.finish(gen, it, outcome{err: errors.New("no output produced")}, start)
		return
	}
	c.finish(gen, it, outcome{output: out, summary: summary}, start)
}

// encodeRaw encodes pixels the worker could not, then splices the Exif
// payload it extracted.
func (c *Controller) encodeRaw(res worker.Result, s worker.Settings) ([]byte, *metadata.Summary, error) {
	if c.encoder == nil {
		return nil, nil, fmt.Errorf("%w: %w", worker.ErrEncode, errNoEncoder)
	}
	metrics.FallbackEncodesTotal.Inc()

	out, err := c.encoder.Encode(res.Raw, s.Quality)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", worker.ErrEncode, err)
	}

	summary := res.Summary
	if s.KeepMetadata && res.Metadata != nil {
		spliced := metadata.Splice(out, res.Metadata)
		if len(spliced) == len(out) {
			summary = nil
		}
		out = spliced
	} else {
		summary = nil
	}
	return out, summary, nil
}

// finish records the outcome unless the item was superseded meanwhile.
func (c *Controller) finish(gen uint64, it *item, o outcome, start time.Time) {
	c.mu.Lock()
	if gen != c.generation || c.byID[it.ID] != it || it.Status != StatusProcessing {
		c.mu.Unlock()
		logging.Debug("Ignoring stale result for %s", it.SourceName)
		return
	}

	metrics.ConversionDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	if o.err != nil {
		it.clearResult()
		it.Status = StatusError
		it.Error = errorMessage(o.err)
		c.mu.Unlock()

		metrics.ConversionsTotal.WithLabelValues("batch", "error").Inc()
		logging.Warn("Conversion of %s failed: %v", it.SourceName, o.err)
		return
	}

	// A URL must be revoked before a new one is assigned.
	if it.ObjectURL != "" {
		c.agg.Retract(it.OutputName, it.ObjectURL)
	}
	it.ObjectURL = c.agg.Publish(it.OutputName, o.output)
	it.Status = StatusDone
	it.Error = ""
	it.output = o.output
	it.BytesOut = int64(len(o.output))
	it.Metadata = o.summary
	snap := it.snapshot()
	hook := c.OnItemDone
	c.mu.Unlock()

	metrics.ConversionsTotal.WithLabelValues("batch", "success").Inc()
	metrics.ConversionBytes.WithLabelValues("out").Add(float64(len(o.output)))
	logging.Debug("Converted %s -> %s (%s)", snap.SourceName, snap.OutputName, FormatBytes(snap.BytesOut))

	if hook != nil {
		hook(snap, o.output)
	}
}

// requeue returns an interrupted item to pending.
func (c *Controller) requeue(gen uint64, it *item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation && c.byID[it.ID] == it && it.Status == StatusProcessing {
		it.Status = StatusPending
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, worker.ErrDecode):
		return "Failed to decode HEIC/HEIF image."
	case errors.Is(err, worker.ErrEncode):
		return "JPEG encoding failed."
	case errors.Is(err, worker.ErrCrashed):
		return "Worker crashed."
	case errors.Is(err, errReadSource):
		return "Failed to read source file."
	}
	return err.Error()
}

// ApplyOverride sets per-item settings. A finished item is re-queued: its
// object URL is revoked, its archive entry removed, and it becomes pending.
func (c *Controller) ApplyOverride(id string, s worker.Settings) (Item, error) {
	s = s.Clamp()

	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return Item{}, ErrNotFound
	}
	it.Override = &s

	requeue := it.Status == StatusDone || it.Status == StatusError
	if requeue {
		c.agg.Retract(it.OutputName, it.ObjectURL)
		it.clearResult()
		it.Status = StatusPending
	}
	snap := it.snapshot()
	c.mu.Unlock()

	if requeue {
		metrics.BatchOverridesTotal.WithLabelValues("requeue").Inc()
		logging.Info("Re-queued %s with quality %.2f, keep metadata %t", snap.SourceName, s.Quality, s.KeepMetadata)
		c.Kick()
	} else {
		metrics.BatchOverridesTotal.WithLabelValues("apply").Inc()
	}
	return snap, nil
}

// ClearOverride removes the per-item settings. The item is not re-queued.
func (c *Controller) ClearOverride(id string) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	it.Override = nil
	metrics.BatchOverridesTotal.WithLabelValues("clear").Inc()
	return it.snapshot(), nil
}

// Reset cancels the batch: in-flight work is rejected and later ignored,
// every object URL is revoked, items and archive are cleared and the
// global settings return to their defaults.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	c.processing = false
	n := len(c.items)
	c.items = nil
	c.byID = make(map[string]*item)
	c.settings = c.defaults
	c.notice = nil
	// Swap the worker session before any new-generation loop can post.
	c.client.Reset()
	c.mu.Unlock()

	revoked := c.agg.Reset()

	c.initMu.Lock()
	c.runtimeErr = nil
	c.initMu.Unlock()

	metrics.BatchResetsTotal.Inc()
	logging.Info("Batch reset: %d items cleared, %d object URLs revoked", n, revoked)
}

// Items returns snapshots of all items in insertion order.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	for i, it := range c.items {
		out[i] = it.snapshot()
	}
	return out
}

// Item returns one item.
func (c *Controller) Item(id string) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return it.snapshot(), true
}

// Result returns the output of a done item.
func (c *Controller) Result(id string) ([]byte, Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.byID[id]
	if !ok || it.Status != StatusDone {
		return nil, Item{}, false
	}
	return it.output, it.snapshot(), true
}

// Lookup resolves an object URL to its bytes.
func (c *Controller) Lookup(url string) ([]byte, string, bool) {
	return c.agg.Lookup(url)
}

// Processing reports whether the queue loop is running.
func (c *Controller) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// Archive builds a zip of every converted item. It fails with ErrBusy
// while processing and ErrEmpty when nothing has converted. A generation
// failure is reported as a notice and leaves per-item downloads intact.
func (c *Controller) Archive() ([]byte, error) {
	c.mu.Lock()
	busy := c.processing
	stats := c.statsLocked()
	c.mu.Unlock()

	if busy {
		metrics.ArchiveGenerationsTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	if stats.Success == 0 {
		metrics.ArchiveGenerationsTotal.WithLabelValues("empty").Inc()
		return nil, ErrEmpty
	}

	data, err := c.agg.Generate()
	if err != nil {
		metrics.ArchiveGenerationsTotal.WithLabelValues("error").Inc()
		c.setNotice(NoticeArchiveFailed, err)
		logging.Error("Archive generation failed: %v", err)
		return nil, err
	}

	metrics.ArchiveGenerationsTotal.WithLabelValues("success").Inc()
	metrics.ArchiveSizeBytes.Set(float64(len(data)))
	logging.Info("Generated archive with %d files (%s)", stats.Success, FormatBytes(int64(len(data))))
	return data, nil
}

// Close tears the controller down: the worker stops, every object URL is
// revoked and background loops are awaited. The controller is unusable
// afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.processing = false
	for _, it := range c.items {
		it.ObjectURL = ""
	}
	c.mu.Unlock()

	c.cancel()
	c.client.Close()
	c.agg.Close()
	c.loops.Wait()
}

func (c *Controller) workerCrashed(err error) {
	c.setNotice(NoticeWorkerCrashed, err)
}
