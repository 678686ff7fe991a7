package results

import (
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
)

type entry struct {
	name     string
	data     []byte
	modified time.Time
}

// Archive is an ordered set of named files that can be generated as a zip.
// It is not safe for concurrent use; Aggregator serializes access.
type Archive struct {
	entries []entry
	index   map[string]int
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{index: make(map[string]int)}
}

// Add stores data under name. An existing entry with the same name is
// replaced in place.
func (a *Archive) Add(name string, data []byte) {
	e := entry{name: name, data: data, modified: time.Now()}
	if i, ok := a.index[name]; ok {
		a.entries[i] = e
		return
	}
	a.index[name] = len(a.entries)
	a.entries = append(a.entries, e)
}

// Remove drops the entry for name and reports whether it existed.
func (a *Archive) Remove(name string) bool {
	i, ok := a.index[name]
	if !ok {
		return false
	}
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	delete(a.index, name)
	for j := i; j < len(a.entries); j++ {
		a.index[a.entries[j].name] = j
	}
	return true
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Names lists entry names in insertion order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// Size returns the total size of the stored data.
func (a *Archive) Size() int64 {
	var n int64
	for _, e := range a.entries {
		n += int64(len(e.data))
	}
	return n
}

// Reset removes every entry.
func (a *Archive) Reset() {
	a.entries = nil
	clear(a.index)
}

// Generate writes the entries as a zip. JPEG data does not compress, so
// entries are stored.
func (a *Archive) Generate() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(a.Size()) + len(a.entries)*128)

	zw := zip.NewWriter(&buf)
	for _, e := range a.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Store,
			Modified: e.modified,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
