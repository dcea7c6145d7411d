// Package tempfiles spools streams to disk for operations that need a
// seekable copy with a known length.
package tempfiles

import (
	"fmt"
	"io"
	"os"
)

// Spool copies r into a fresh temp file under dir, creating the directory if
// needed, and rewinds the file so the caller can read it from the start. The
// returned cleanup closes and unlinks the file; calling it twice is harmless.
func Spool(dir, pattern string, r io.Reader) (*os.File, int64, func(), error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, 0, nil, fmt.Errorf("create spool dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create spool file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	size, err := io.Copy(f, r)
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("spool stream: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("rewind spool file: %w", err)
	}
	return f, size, cleanup, nil
}
