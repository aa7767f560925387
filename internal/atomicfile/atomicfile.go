// Package atomicfile provides write-temp-then-rename persistence for the
// small JSON documents the checkstore and cooldown packages own. Rename is
// atomic on POSIX filesystems, so a reader never observes a partially
// written document.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON writes data to path by first writing it to a temporary file in
// path's directory, then renaming it into place. The parent directory is
// created if absent.
func WriteJSON(path string, data []byte) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads path's raw bytes. A missing file is reported via
// os.IsNotExist on the returned error so callers can treat it as "no
// document yet" without a sentinel value.
func ReadJSON(path string) ([]byte, error) {
	return os.ReadFile(path)
}
