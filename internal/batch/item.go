package batch

import (
	"os"
	"path/filepath"

	"heic-to-jpg/internal/filesystem"
	"heic-to-jpg/internal/metadata"
	"heic-to-jpg/internal/worker"
)

// Status is the lifecycle state of an item.
type Status string

// Item statuses. An item moves pending -> processing -> done|error, and
// back to pending only through ApplyOverride.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Source supplies the original bytes of an item. Open may be called more
// than once, once per dispatch.
type Source interface {
	Name() string
	Size() int64
	Open() ([]byte, error)
}

// FileSource reads a file from disk on each Open.
type FileSource struct {
	path  string
	size  int64
	retry filesystem.RetryConfig
}

// NewFileSource stats path and returns a source for it.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, size: info.Size(), retry: filesystem.DefaultRetryConfig()}, nil
}

// Name returns the file's base name.
func (s *FileSource) Name() string { return filepath.Base(s.path) }

// Size returns the size recorded when the source was created.
func (s *FileSource) Size() int64 { return s.size }

// Path returns the full path.
func (s *FileSource) Path() string { return s.path }

// Open reads the file.
func (s *FileSource) Open() ([]byte, error) {
	return filesystem.ReadFileWithRetry(s.path, s.retry)
}

// BytesSource is an in-memory source, typically an upload.
type BytesSource struct {
	name        string
	contentType string
	data        []byte
}

// NewBytesSource wraps data. The slice is not copied and must not be
// modified afterwards. contentType may be empty.
func NewBytesSource(name, contentType string, data []byte) *BytesSource {
	return &BytesSource{name: name, contentType: contentType, data: data}
}

func (s *BytesSource) Name() string          { return s.name }
func (s *BytesSource) Size() int64           { return int64(len(s.data)) }
func (s *BytesSource) Open() ([]byte, error) { return s.data, nil }

// ContentType returns the declared MIME type.
func (s *BytesSource) ContentType() string { return s.contentType }

// contentTyped is implemented by sources that know their MIME type.
type contentTyped interface {
	ContentType() string
}

func contentTypeOf(src Source) string {
	if ct, ok := src.(contentTyped); ok {
		return ct.ContentType()
	}
	return ""
}

// Item is a snapshot of one conversion item.
type Item struct {
	ID         string            `json:"id"`
	SourceName string            `json:"sourceName"`
	OutputName string            `json:"outputName"`
	Status     Status            `json:"status"`
	Override   *worker.Settings  `json:"override,omitempty"`
	ObjectURL  string            `json:"objectUrl,omitempty"`
	Error      string            `json:"error,omitempty"`
	BytesIn    int64             `json:"bytesIn"`
	BytesOut   int64             `json:"bytesOut"`
	Metadata   *metadata.Summary `json:"metadata,omitempty"`
}

// item is the controller's mutable record behind an Item.
type item struct {
	Item
	source Source
	output []byte
}

// snapshot copies the public part of it.
func (it *item) snapshot() Item {
	s := it.Item
	if it.Override != nil {
		o := *it.Override
		s.Override = &o
	}
	if it.Metadata != nil {
		m := *it.Metadata
		s.Metadata = &m
	}
	return s
}

// clearResult drops the output fields, leaving the item ready to re-run.
func (it *item) clearResult() {
	it.ObjectURL = ""
	it.Error = ""
	it.BytesOut = 0
	it.Metadata = nil
	it.output = nil
}
