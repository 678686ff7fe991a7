package batch

import (
	"strconv"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"IMG_0001.HEIC", "IMG_0001.HEIC"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{`dir\file.heic`, "dir_file.heic"},
		{"nul\x00byte.heic", "nul_byte.heic"},
		{"  spaced.heic  ", "spaced.heic"},
		{"   ", "image"},
		{"", "image"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToJPGName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"IMG_0001.HEIC", "IMG_0001.jpg"},
		{"photo.heif", "photo.jpg"},
		{"photo.HeIc", "photo.jpg"},
		{"archive.heic.heic", "archive.heic.jpg"},
		{"notes.png", "notes.png.jpg"},
		{".heic", "image.jpg"},
		{"", "image.jpg"},
	}
	for _, tt := range tests {
		if got := ToJPGName(tt.in); got != tt.want {
			t.Errorf("ToJPGName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{}
	const n = 25

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		name := UniqueName("IMG_0001.jpg", taken)
		if seen[name] {
			t.Fatalf("UniqueName returned duplicate %q", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "IMG_0001") || !strings.HasSuffix(name, ".jpg") {
			t.Errorf("%q does not resolve back to IMG_0001.jpg", name)
		}
	}

	for _, want := range []string{"IMG_0001.jpg", "IMG_0001 (1).jpg", "IMG_0001 (24).jpg"} {
		if !seen[want] {
			t.Errorf("expected %q among generated names", want)
		}
	}
}

func TestUniqueNameUppercaseExtension(t *testing.T) {
	taken := map[string]bool{"A.JPG": true}
	if got := UniqueName("A.JPG", taken); got != "A (1).JPG" {
		t.Errorf("UniqueName() = %q, want %q", got, "A (1).JPG")
	}
}

func TestUniqueNameExhausted(t *testing.T) {
	taken := map[string]bool{"x.jpg": true}
	for i := 1; i < maxNameSuffix; i++ {
		taken["x ("+strconv.Itoa(i)+").jpg"] = true
	}
	got := UniqueName("x.jpg", taken)
	if !strings.HasPrefix(got, "x (") || !strings.HasSuffix(got, ").jpg") {
		t.Fatalf("UniqueName() = %q, want timestamp suffix", got)
	}
	if got == "x (1).jpg" {
		t.Error("fell back to a taken name")
	}
}

func TestIsHEICLike(t *testing.T) {
	tests := []struct {
		name, mime string
		want       bool
	}{
		{"IMG_0001.HEIC", "", true},
		{"photo.heif", "application/octet-stream", true},
		{"photo", "image/heic", true},
		{"photo", "image/heif", true},
		{"photo.jpg", "image/jpeg", false},
		{"heic.txt", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := IsHEICLike(tt.name, tt.mime); got != tt.want {
			t.Errorf("IsHEICLike(%q, %q) = %v, want %v", tt.name, tt.mime, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{10 * 1024, "10 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{1288490189, "1.2 GB"},
		{5 << 40, "5120.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueuedText(t *testing.T) {
	tests := []struct {
		count, skipped int
		want           string
	}{
		{0, 3, "No HEIC/HEIF files detected."},
		{2, 0, "Queued 2."},
		{2, 1, "Queued 2 (skipped 1)."},
	}
	for _, tt := range tests {
		if got := QueuedText(tt.count, tt.skipped); got != tt.want {
			t.Errorf("QueuedText(%d, %d) = %q, want %q", tt.count, tt.skipped, got, tt.want)
		}
	}
}
