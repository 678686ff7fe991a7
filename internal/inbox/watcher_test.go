package inbox

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"heic-to-jpg/internal/batch"
)

type fakeQueue struct {
	mu    sync.Mutex
	names []string
	kicks int
}

func (q *fakeQueue) AddFiles(sources ...batch.Source) batch.AddResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	var res batch.AddResult
	for _, s := range sources {
		q.names = append(q.names, s.Name())
		res.Added = append(res.Added, batch.Item{SourceName: s.Name(), OutputName: batch.ToJPGName(s.Name())})
	}
	return res
}

func (q *fakeQueue) Kick() {
	q.mu.Lock()
	q.kicks++
	q.mu.Unlock()
}

func (q *fakeQueue) snapshot() ([]string, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.names), q.kicks
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherEnqueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "IMG_1.HEIC"), "a")
	writeFile(t, filepath.Join(dir, "notes.txt"), "b")
	writeFile(t, filepath.Join(dir, ".hidden.heic"), "c")
	if err := os.Mkdir(filepath.Join(dir, "sub.heic"), 0o755); err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}
	w := New(dir, q, 20*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	names, kicks := q.snapshot()
	if !slices.Equal(names, []string{"IMG_1.HEIC"}) {
		t.Errorf("enqueued %v, want [IMG_1.HEIC]", names)
	}
	if kicks != 1 {
		t.Errorf("kicks = %d, want 1", kicks)
	}
}

func TestWatcherDebouncesNewFiles(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQueue{}
	w := New(dir, q, 50*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "IMG_2.heic")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if _, err := f.Write([]byte("chunk")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.Close()
	writeFile(t, filepath.Join(dir, "skip.png"), "x")

	waitFor(t, "debounced enqueue", func() bool {
		names, _ := q.snapshot()
		return len(names) > 0
	})
	time.Sleep(150 * time.Millisecond)

	names, _ := q.snapshot()
	if !slices.Equal(names, []string{"IMG_2.heic"}) {
		t.Errorf("enqueued %v, want exactly [IMG_2.heic]", names)
	}
}

func TestWatcherStartErrors(t *testing.T) {
	if err := New(filepath.Join(t.TempDir(), "missing"), &fakeQueue{}, 0).Start(); err == nil {
		t.Error("Start() on missing directory succeeded")
	}

	file := filepath.Join(t.TempDir(), "file")
	writeFile(t, file, "")
	if err := New(file, &fakeQueue{}, 0).Start(); err == nil {
		t.Error("Start() on a regular file succeeded")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), &fakeQueue{}, 0)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWanted(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/in/IMG_1.HEIC", true},
		{"/in/a.heif", true},
		{"/in/.a.heic", false},
		{"/in/a.jpg", false},
	}
	for _, tt := range tests {
		if got := wanted(tt.path); got != tt.want {
			t.Errorf("wanted(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

type recordingSaver struct {
	saved map[string]string
	err   error
}

func (s *recordingSaver) Save(data []byte, filename string) error {
	if s.err != nil {
		return s.err
	}
	s.saved[filename] = string(data)
	return nil
}

func TestAutosaveHook(t *testing.T) {
	s := &recordingSaver{saved: map[string]string{}}
	hook := AutosaveHook(s)
	hook(batch.Item{OutputName: "IMG_1.jpg"}, []byte("jpeg"))
	if s.saved["IMG_1.jpg"] != "jpeg" {
		t.Errorf("saved = %v", s.saved)
	}

	s.err = errors.New("disk full")
	hook(batch.Item{OutputName: "IMG_2.jpg"}, []byte("jpeg"))
	if _, ok := s.saved["IMG_2.jpg"]; ok {
		t.Error("failed save recorded")
	}
}
