package results

import (
	"fmt"
	"os"
	"path/filepath"

	"heic-to-jpg/internal/filesystem"
	"heic-to-jpg/internal/logging"
)

// Saver delivers a finished file to the user.
type Saver interface {
	Save(data []byte, filename string) error
}

// DirSaver saves files into a directory.
type DirSaver struct {
	Dir   string
	Retry filesystem.RetryConfig
}

// NewDirSaver creates dir if needed and returns a saver writing into it.
func NewDirSaver(dir string) (*DirSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", dir)
	}
	return &DirSaver{Dir: dir, Retry: filesystem.DefaultRetryConfig()}, nil
}

// Save writes data to Dir/filename, replacing any existing file. Only the
// base name of filename is used.
func (s *DirSaver) Save(data []byte, filename string) error {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid file name %q", filename)
	}

	path := filepath.Join(s.Dir, name)
	if err := filesystem.WriteFileAtomic(path, data, 0o644, s.Retry); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	logging.Debug("Saved %s (%d bytes)", path, len(data))
	return nil
}
