package inbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metrics"
	"heic-to-jpg/internal/results"
)

// DefaultDebounce is the quiet period before a file is enqueued.
const DefaultDebounce = 500 * time.Millisecond

// Queue accepts sources for conversion.
type Queue interface {
	AddFiles(sources ...batch.Source) batch.AddResult
	Kick()
}

// fileKey identifies one version of a file.
type fileKey struct {
	size    int64
	modTime time.Time
}

// Watcher feeds files from a directory into a Queue.
type Watcher struct {
	dir      string
	queue    Queue
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
	queued  map[string]fileKey
	stopped bool
}

// New returns a watcher for dir. Call Start to begin watching.
func New(dir string, queue Queue, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		queue:    queue,
		debounce: debounce,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
		queued:   make(map[string]fileKey),
	}
}

// Start enqueues the files already in the directory and begins watching.
func (w *Watcher) Start() error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watch path is not a directory: " + w.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.InboxErrorsTotal.Inc()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		metrics.InboxErrorsTotal.Inc()
		watcher.Close()
		return err
	}
	w.watcher = watcher

	w.scanExisting()

	w.wg.Add(1)
	go w.processEvents()
	logging.Info("Watching %s for HEIC/HEIF files", w.dir)
	return nil
}

// Stop ends watching and drops files still waiting out their debounce.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	close(w.done)
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			logging.Error("failed to close inbox watcher: %v", err)
		}
	}
	w.wg.Wait()
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Warn("Failed to list %s: %v", w.dir, err)
		metrics.InboxErrorsTotal.Inc()
		return
	}

	var sources []batch.Source
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !wanted(path) {
			continue
		}
		if src := w.claim(path); src != nil {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return
	}
	w.submit(sources...)
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Inbox watcher error: %v", err)
			metrics.InboxErrorsTotal.Inc()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	eventType := eventType(event.Op)
	if eventType == "" {
		return
	}
	metrics.InboxEventsTotal.WithLabelValues(eventType).Inc()

	if !wanted(event.Name) {
		metrics.InboxEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	switch eventType {
	case "create", "write":
		w.schedule(event.Name)
	case "remove", "rename":
		w.cancel(event.Name)
	}
}

// eventType names the operations the inbox reacts to.
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	default:
		return ""
	}
}

// wanted reports whether path names a visible HEIC-like file.
func wanted(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return batch.IsHEICLike(name, "")
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.settle(path) })
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
	delete(w.queued, path)
}

// settle runs when path has been quiet for the debounce interval.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	if src := w.claim(path); src != nil {
		w.submit(src)
	}
}

// claim returns a source for path unless this version of the file was
// already enqueued.
func (w *Watcher) claim(path string) batch.Source {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		logging.Debug("Inbox file %s skipped: %v", path, err)
		return nil
	}
	key := fileKey{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	prev, seen := w.queued[path]
	if seen && prev.size == key.size && prev.modTime.Equal(key.modTime) {
		w.mu.Unlock()
		return nil
	}
	w.queued[path] = key
	w.mu.Unlock()

	src, err := batch.NewFileSource(path)
	if err != nil {
		logging.Debug("Inbox file %s vanished: %v", path, err)
		return nil
	}
	return src
}

func (w *Watcher) submit(sources ...batch.Source) {
	res := w.queue.AddFiles(sources...)
	metrics.InboxEventsTotal.WithLabelValues("enqueued").Add(float64(len(res.Added)))
	for _, it := range res.Added {
		logging.Info("Inbox: queued %s as %s", it.SourceName, it.OutputName)
	}
	if len(res.Added) > 0 {
		w.queue.Kick()
	}
}

// AutosaveHook returns a batch.Controller OnItemDone hook that saves every
// converted file with s.
func AutosaveHook(s results.Saver) func(batch.Item, []byte) {
	return func(it batch.Item, data []byte) {
		if err := s.Save(data, it.OutputName); err != nil {
			logging.Error("Autosave of %s failed: %v", it.OutputName, err)
			metrics.InboxErrorsTotal.Inc()
			return
		}
		logging.Info("Saved %s", it.OutputName)
	}
}
