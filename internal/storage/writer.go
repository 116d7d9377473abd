package storage

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"attachment-service/internal/domain"
)

// Writer durably persists validated payloads to guarded paths. A failed
// write never leaves a partial file behind.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a Writer
func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write creates the file exclusively, writes all bytes, flushes them to
// stable storage and marks the file read-only. The path must already have
// passed the PathGuard. An existing file at the path means the name
// generator's uniqueness invariant was broken; that is surfaced as a hard
// failure, not retried.
func (w *Writer) Write(path string, content []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return 0, domain.NewIOFailure(domain.IOWriteFailed,
				fmt.Errorf("stored name collision at %s: %w", path, err))
		}
		return 0, domain.NewIOFailure(domain.IOWriteFailed, err)
	}

	n, err := f.Write(content)
	if err != nil {
		w.cleanup(f, path)
		return 0, domain.NewIOFailure(domain.IOWriteFailed, err)
	}
	if n != len(content) {
		w.cleanup(f, path)
		return 0, domain.NewIOFailure(domain.IOShortWrite,
			fmt.Errorf("wrote %d of %d bytes to %s", n, len(content), path))
	}

	if err := f.Sync(); err != nil {
		w.cleanup(f, path)
		return 0, domain.NewIOFailure(domain.IOWriteFailed, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, domain.NewIOFailure(domain.IOWriteFailed, err)
	}

	// Read-only at the filesystem level to reduce tamper surface
	if err := os.Chmod(path, 0o444); err != nil {
		_ = os.Remove(path)
		return 0, domain.NewIOFailure(domain.IOWriteFailed, err)
	}

	return int64(n), nil
}

// cleanup closes and removes a partially written file before the error
// is propagated
func (w *Writer) cleanup(f *os.File, path string) {
	_ = f.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Error("Failed to remove partial file after write failure",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
