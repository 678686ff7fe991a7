package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	fallbackStem = "image"

	// maxNameSuffix bounds the " (n)" search before UniqueName falls back
	// to a timestamp suffix.
	maxNameSuffix = 10000
)

var (
	unsafeNameChars = strings.NewReplacer(`\`, "_", "/", "_", "\x00", "_")
	heifExtension   = regexp.MustCompile(`(?i)\.(heic|heif)$`)
	jpgExtension    = regexp.MustCompile(`(?i)^(.*?)(\.jpg)$`)
)

// SanitizeName replaces path separators and NUL with underscores and trims
// surrounding whitespace. An empty result becomes "image".
func SanitizeName(name string) string {
	cleaned := strings.TrimSpace(unsafeNameChars.Replace(name))
	if cleaned == "" {
		return fallbackStem
	}
	return cleaned
}

// ToJPGName derives the output name for a source file name.
func ToJPGName(name string) string {
	stem := heifExtension.ReplaceAllString(SanitizeName(name), "")
	if stem == "" {
		stem = fallbackStem
	}
	return stem + ".jpg"
}

// UniqueName returns name, or name with " (n)" inserted before the .jpg
// extension, such that the result is not in taken. The result is added to
// taken.
func UniqueName(name string, taken map[string]bool) string {
	if name == "" {
		name = fallbackStem + ".jpg"
	}
	if !taken[name] {
		taken[name] = true
		return name
	}

	stem, ext := name, ".jpg"
	if m := jpgExtension.FindStringSubmatch(name); m != nil {
		stem, ext = m[1], m[2]
	}

	for n := 1; n < maxNameSuffix; n++ {
		candidate := stem + " (" + strconv.Itoa(n) + ")" + ext
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}

	candidate := fmt.Sprintf("%s (%d)%s", stem, time.Now().UnixMilli(), ext)
	taken[candidate] = true
	return candidate
}

// IsHEICLike reports whether a file looks like HEIC or HEIF by its name or
// its declared MIME type.
func IsHEICLike(name, mimeType string) bool {
	if heifExtension.MatchString(name) {
		return true
	}
	return mimeType == "image/heic" || mimeType == "image/heif"
}

// FormatBytes renders a byte count as B, KB, MB or GB. B and KB have no
// decimals, larger units one.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	decimals := 1
	if i <= 1 {
		decimals = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64) + " " + units[i]
}
