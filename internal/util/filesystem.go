package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic streams fill's output into a temp file next to path and
// renames it into place. Readers see either the old file or the new one,
// never a partial write. On error the temp file is removed and path is untouched.
func WriteFileAtomic(path string, fill func(w io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	n, err := fill(tmp)
	if err != nil {
		tmp.Close()
		return n, err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return n, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return n, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return n, nil
}
