package results

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestURLRegistry(t *testing.T) {
	r := NewURLRegistry()

	a := r.Create([]byte("one"), ContentTypeJPEG)
	b := r.Create([]byte("two"), ContentTypeJPEG)
	if a == b {
		t.Fatal("Create() returned the same URL twice")
	}
	if !strings.HasPrefix(a, URLPrefix) {
		t.Errorf("URL %q lacks prefix %q", a, URLPrefix)
	}
	if URLFromToken(Token(a)) != a {
		t.Errorf("token round trip of %q failed", a)
	}

	data, ct, ok := r.Get(a)
	if !ok || string(data) != "one" || ct != ContentTypeJPEG {
		t.Errorf("Get() = %q, %q, %v", data, ct, ok)
	}

	if !r.Revoke(a) {
		t.Error("Revoke() of live URL = false")
	}
	if r.Revoke(a) {
		t.Error("second Revoke() = true")
	}
	if _, _, ok := r.Get(a); ok {
		t.Error("Get() after Revoke succeeded")
	}

	r.Create([]byte("three"), ContentTypeJPEG)
	if n := r.RevokeAll(); n != 2 {
		t.Errorf("RevokeAll() = %d, want 2", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after RevokeAll", r.Len())
	}
	if _, _, ok := r.Get(b); ok {
		t.Error("Get() after RevokeAll succeeded")
	}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		if f.Method != zip.Store {
			t.Errorf("%s method = %d, want Store", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func TestArchive(t *testing.T) {
	a := NewArchive()
	a.Add("a.jpg", []byte("A"))
	a.Add("b.jpg", []byte("B"))
	a.Add("c.jpg", []byte("C"))

	if !a.Remove("b.jpg") {
		t.Fatal("Remove() of existing entry = false")
	}
	if a.Remove("b.jpg") {
		t.Error("second Remove() = true")
	}
	a.Add("b.jpg", []byte("B2"))
	a.Add("a.jpg", []byte("A2"))

	if got, want := a.Names(), []string{"a.jpg", "c.jpg", "b.jpg"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if a.Size() != 5 {
		t.Errorf("Size() = %d, want 5", a.Size())
	}

	data, err := a.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	got := readZip(t, data)
	want := map[string]string{"a.jpg": "A2", "b.jpg": "B2", "c.jpg": "C"}
	if len(got) != len(want) {
		t.Fatalf("archive has %d entries, want %d", len(got), len(want))
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("%s = %q, want %q", name, got[name], content)
		}
	}

	a.Reset()
	if a.Len() != 0 {
		t.Errorf("Len() after Reset = %d", a.Len())
	}
	a.Add("a.jpg", []byte("again"))
	if a.Len() != 1 {
		t.Errorf("Len() after re-add = %d", a.Len())
	}
}

func TestArchiveGenerateEmpty(t *testing.T) {
	data, err := NewArchive().Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := readZip(t, data); len(got) != 0 {
		t.Errorf("empty archive has %d entries", len(got))
	}
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator()

	u1 := agg.Publish("one.jpg", []byte("1"))
	u2 := agg.Publish("two.jpg", []byte("2"))
	if agg.Entries() != 2 || agg.LiveURLs() != 2 {
		t.Fatalf("Entries() = %d, LiveURLs() = %d, want 2, 2", agg.Entries(), agg.LiveURLs())
	}

	agg.Retract("one.jpg", u1)
	if _, _, ok := agg.Lookup(u1); ok {
		t.Error("retracted URL still live")
	}
	if data, _, ok := agg.Lookup(u2); !ok || string(data) != "2" {
		t.Errorf("Lookup(u2) = %q, %v", data, ok)
	}
	if agg.Entries() != 1 {
		t.Errorf("Entries() = %d after Retract, want 1", agg.Entries())
	}

	if n := agg.Reset(); n != 1 {
		t.Errorf("Reset() revoked %d URLs, want 1", n)
	}
	if agg.Entries() != 0 || agg.LiveURLs() != 0 {
		t.Errorf("after Reset: Entries() = %d, LiveURLs() = %d", agg.Entries(), agg.LiveURLs())
	}
}

func TestDirSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewDirSaver(dir)
	if err != nil {
		t.Fatalf("NewDirSaver() error = %v", err)
	}

	if err := s.Save([]byte("jpeg"), "../escape/IMG_1.jpg"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "IMG_1.jpg"))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(got) != "jpeg" {
		t.Errorf("content = %q", got)
	}

	if err := s.Save([]byte("x"), "/"); err == nil {
		t.Error("Save() with no base name succeeded")
	}
}

func TestNewDirSaverRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDirSaver(path); err == nil {
		t.Error("NewDirSaver() on a regular file succeeded")
	}
}
